package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'pool_state') THEN
			CREATE TYPE pool_state AS ENUM ('OPEN', 'THRESHOLD_REACHED', 'FULFILLING', 'CANCELLED', 'EXPIRED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'contribution_status') THEN
			CREATE TYPE contribution_status AS ENUM ('ACTIVE', 'WITHDRAWN');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'auction_state') THEN
			CREATE TYPE auction_state AS ENUM ('OPEN', 'AWARDED', 'CANCELLED', 'EXPIRED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'bid_status') THEN
			CREATE TYPE bid_status AS ENUM ('PENDING', 'ACCEPTED', 'REJECTED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS demand_pools (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		resource_kind VARCHAR(128) NOT NULL,
		target_quantity NUMERIC(18,3) NOT NULL,
		target_unit_price NUMERIC(18,4),
		current_quantity NUMERIC(18,3) NOT NULL DEFAULT 0,
		delivery_location TEXT NOT NULL,
		deliver_by TIMESTAMPTZ NOT NULL,
		state pool_state NOT NULL DEFAULT 'OPEN',
		threshold_crossed_at TIMESTAMPTZ,
		final_unit_price NUMERIC(18,4),
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		version BIGINT NOT NULL DEFAULT 1
	);`,
	`CREATE TABLE IF NOT EXISTS contributions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		pool_id UUID NOT NULL REFERENCES demand_pools(id),
		participant_id UUID NOT NULL,
		quantity NUMERIC(18,3) NOT NULL CHECK (quantity > 0),
		submitted_at TIMESTAMPTZ NOT NULL,
		status contribution_status NOT NULL DEFAULT 'ACTIVE'
	);`,
	`CREATE TABLE IF NOT EXISTS reverse_auctions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		commodity VARCHAR(128) NOT NULL,
		quantity NUMERIC(18,3) NOT NULL,
		quality_spec TEXT NOT NULL DEFAULT '',
		deliver_by TIMESTAMPTZ NOT NULL,
		state auction_state NOT NULL DEFAULT 'OPEN',
		awarded_bid_id UUID,
		posted_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		version BIGINT NOT NULL DEFAULT 1
	);`,
	`CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		auction_id UUID NOT NULL REFERENCES reverse_auctions(id),
		bidder_id UUID NOT NULL,
		price NUMERIC(18,4) NOT NULL CHECK (price > 0),
		quality_offer TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL,
		status bid_status NOT NULL DEFAULT 'PENDING'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_contributions_pool_id ON contributions (pool_id);`,
	`CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids (auction_id);`,
	`CREATE INDEX IF NOT EXISTS idx_demand_pools_state ON demand_pools (state);`,
	`CREATE INDEX IF NOT EXISTS idx_demand_pools_deliver_by ON demand_pools (deliver_by) WHERE state IN ('OPEN', 'THRESHOLD_REACHED');`,
	`CREATE INDEX IF NOT EXISTS idx_reverse_auctions_state ON reverse_auctions (state);`,
	`CREATE INDEX IF NOT EXISTS idx_reverse_auctions_deliver_by ON reverse_auctions (deliver_by) WHERE state = 'OPEN';`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
