package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mavuno/demand-engine/internal/model"
)

type PoolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

func (r *PoolRepository) CreatePool(ctx context.Context, pool model.DemandPool) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO demand_pools (
			id,
			resource_kind,
			target_quantity,
			target_unit_price,
			current_quantity,
			delivery_location,
			deliver_by,
			state,
			created_by,
			created_at,
			version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pool.ID,
		pool.ResourceKind,
		pool.TargetQuantity,
		pool.TargetUnitPrice,
		pool.CurrentQuantity,
		pool.DeliveryLocation,
		pool.DeliverBy,
		pool.State,
		pool.CreatedBy,
		pool.CreatedAt,
		pool.Version,
	).Error
}

func (r *PoolRepository) GetPool(ctx context.Context, id uuid.UUID) (*model.DemandPool, error) {
	var pool model.DemandPool
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			resource_kind,
			target_quantity,
			target_unit_price,
			current_quantity,
			delivery_location,
			deliver_by,
			state,
			threshold_crossed_at,
			final_unit_price,
			created_by,
			created_at,
			version
		FROM demand_pools
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&pool).Error
	if err != nil {
		return nil, err
	}
	if pool.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &pool, nil
}

func (r *PoolRepository) ListContributions(ctx context.Context, poolID uuid.UUID) ([]model.Contribution, error) {
	var contributions []model.Contribution
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, pool_id, participant_id, quantity, submitted_at, status
		FROM contributions
		WHERE pool_id = ?
		ORDER BY submitted_at ASC, id ASC
	`, poolID).Scan(&contributions).Error
	if err != nil {
		return nil, err
	}
	return contributions, nil
}

func (r *PoolRepository) GetContribution(ctx context.Context, id uuid.UUID) (*model.Contribution, error) {
	var contribution model.Contribution
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, pool_id, participant_id, quantity, submitted_at, status
		FROM contributions
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&contribution).Error
	if err != nil {
		return nil, err
	}
	if contribution.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &contribution, nil
}

// InsertContribution writes the contribution and the recomputed pool row in one
// transaction. The pool update is guarded on expectedVersion; when the guard
// misses, the whole transaction rolls back with ErrVersionConflict and the
// contribution row is never visible.
func (r *PoolRepository) InsertContribution(ctx context.Context, pool model.DemandPool, expectedVersion int64, contribution model.Contribution) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
			INSERT INTO contributions (id, pool_id, participant_id, quantity, submitted_at, status)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			contribution.ID,
			contribution.PoolID,
			contribution.ParticipantID,
			contribution.Quantity,
			contribution.SubmittedAt,
			contribution.Status,
		).Error; err != nil {
			return err
		}
		return r.writePoolGuarded(tx, pool, expectedVersion)
	})
}

// WithdrawContribution flips the contribution to WITHDRAWN and writes the
// recomputed pool row, both guarded by the pool version.
func (r *PoolRepository) WithdrawContribution(ctx context.Context, pool model.DemandPool, expectedVersion int64, contributionID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			UPDATE contributions
			SET status = ?
			WHERE id = ? AND status = ?
		`, model.ContributionStatusWithdrawn, contributionID, model.ContributionStatusActive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return r.writePoolGuarded(tx, pool, expectedVersion)
	})
}

func (r *PoolRepository) UpdatePool(ctx context.Context, pool model.DemandPool, expectedVersion int64) error {
	return r.writePoolGuarded(r.db.WithContext(ctx), pool, expectedVersion)
}

func (r *PoolRepository) writePoolGuarded(tx *gorm.DB, pool model.DemandPool, expectedVersion int64) error {
	res := tx.Exec(`
		UPDATE demand_pools
		SET
			current_quantity = ?,
			state = ?,
			threshold_crossed_at = ?,
			final_unit_price = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		pool.CurrentQuantity,
		pool.State,
		pool.ThresholdCrossedAt,
		pool.FinalUnitPrice,
		pool.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *PoolRepository) ListOverduePools(ctx context.Context, cutoff time.Time) ([]model.DemandPool, error) {
	var pools []model.DemandPool
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			resource_kind,
			target_quantity,
			target_unit_price,
			current_quantity,
			delivery_location,
			deliver_by,
			state,
			threshold_crossed_at,
			final_unit_price,
			created_by,
			created_at,
			version
		FROM demand_pools
		WHERE deliver_by < ?
			AND state IN (?, ?)
		ORDER BY deliver_by ASC
	`, cutoff, model.PoolStateOpen, model.PoolStateThresholdReached).Scan(&pools).Error
	if err != nil {
		return nil, err
	}
	return pools, nil
}
