package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
)

// PoolLedger is the slice of the ledger store the pool engine needs. Writes
// that carry an expectedVersion are atomic: either every row lands and the
// aggregate version advances by one, or nothing is written and
// repository.ErrVersionConflict comes back.
type PoolLedger interface {
	CreatePool(ctx context.Context, pool model.DemandPool) error
	GetPool(ctx context.Context, id uuid.UUID) (*model.DemandPool, error)
	ListContributions(ctx context.Context, poolID uuid.UUID) ([]model.Contribution, error)
	GetContribution(ctx context.Context, id uuid.UUID) (*model.Contribution, error)
	InsertContribution(ctx context.Context, pool model.DemandPool, expectedVersion int64, contribution model.Contribution) error
	WithdrawContribution(ctx context.Context, pool model.DemandPool, expectedVersion int64, contributionID uuid.UUID) error
	UpdatePool(ctx context.Context, pool model.DemandPool, expectedVersion int64) error
	ListOverduePools(ctx context.Context, cutoff time.Time) ([]model.DemandPool, error)
}

// AuctionLedger is the auction engine's slice of the ledger store.
type AuctionLedger interface {
	CreateAuction(ctx context.Context, auction model.ReverseAuction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*model.ReverseAuction, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error)
	GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error)
	InsertBid(ctx context.Context, bid model.Bid) error
	AwardAuction(ctx context.Context, auction model.ReverseAuction, expectedVersion int64, winningBidID uuid.UUID) error
	UpdateAuction(ctx context.Context, auction model.ReverseAuction, expectedVersion int64) error
	ListOverdueAuctions(ctx context.Context, cutoff time.Time) ([]model.ReverseAuction, error)
}

// storageError maps ledger failures onto the engine taxonomy. Version
// conflicts never reach here; callers handle those inside the retry loop.
func storageError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
