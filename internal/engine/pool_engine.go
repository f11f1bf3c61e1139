package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mavuno/demand-engine/internal/config"
	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
)

// PoolEngine owns the demand-pool state machine. Every mutation follows the
// same discipline: read the pool and its version, recompute the aggregate from
// the contribution set, write under a version guard, and retry the whole step
// from the read on conflict up to the configured bound. The threshold
// transition therefore happens for exactly one contribution no matter how many
// race.
type PoolEngine struct {
	ledger       PoolLedger
	clock        Clock
	maxRetries   int
	retryBackoff time.Duration
}

func NewPoolEngine(ledger PoolLedger, clock Clock, cfg config.EngineConfig) *PoolEngine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &PoolEngine{
		ledger:       ledger,
		clock:        clock,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
	}
}

type PoolSpec struct {
	ResourceKind     string
	TargetQuantity   float64
	TargetUnitPrice  *float64
	DeliveryLocation string
	DeliverBy        time.Time
	CreatedBy        uuid.UUID
}

// ContributionResult reports the outcome of one accepted contribution.
// CrossedThreshold is true only for the single contribution whose write moved
// the pool to THRESHOLD_REACHED; later contributions against the same pool are
// rejected with ErrPoolNotOpen.
type ContributionResult struct {
	Contribution     model.Contribution
	Pool             model.DemandPool
	CrossedThreshold bool
	Contributors     []uuid.UUID
}

func (e *PoolEngine) CreatePool(ctx context.Context, spec PoolSpec) (*model.DemandPool, error) {
	if spec.ResourceKind == "" {
		return nil, fmt.Errorf("%w: resource kind is required", ErrInvalidSpec)
	}
	if spec.TargetQuantity <= 0 {
		return nil, fmt.Errorf("%w: target quantity must be positive", ErrInvalidSpec)
	}
	if spec.TargetUnitPrice != nil && *spec.TargetUnitPrice <= 0 {
		return nil, fmt.Errorf("%w: target unit price must be positive", ErrInvalidSpec)
	}
	now := e.clock.Now()
	if !spec.DeliverBy.After(now) {
		return nil, fmt.Errorf("%w: deliver_by must be in the future", ErrInvalidSpec)
	}

	pool := model.DemandPool{
		ID:               uuid.New(),
		ResourceKind:     spec.ResourceKind,
		TargetQuantity:   spec.TargetQuantity,
		TargetUnitPrice:  spec.TargetUnitPrice,
		DeliveryLocation: spec.DeliveryLocation,
		DeliverBy:        spec.DeliverBy,
		State:            model.PoolStateOpen,
		CreatedBy:        spec.CreatedBy,
		CreatedAt:        now,
		Version:          1,
	}
	if err := e.ledger.CreatePool(ctx, pool); err != nil {
		return nil, storageError(err)
	}
	return &pool, nil
}

func (e *PoolEngine) GetPool(ctx context.Context, id uuid.UUID) (*model.DemandPool, error) {
	pool, err := e.ledger.GetPool(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return pool, nil
}

func (e *PoolEngine) ListContributions(ctx context.Context, poolID uuid.UUID) ([]model.Contribution, error) {
	if _, err := e.ledger.GetPool(ctx, poolID); err != nil {
		return nil, storageError(err)
	}
	contributions, err := e.ledger.ListContributions(ctx, poolID)
	if err != nil {
		return nil, storageError(err)
	}
	return contributions, nil
}

func (e *PoolEngine) Contribute(ctx context.Context, poolID, participantID uuid.UUID, quantity float64) (*ContributionResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		pool, err := e.ledger.GetPool(ctx, poolID)
		if err != nil {
			return nil, storageError(err)
		}
		if pool.State != model.PoolStateOpen {
			return nil, fmt.Errorf("%w: pool is %s", ErrPoolNotOpen, pool.State)
		}

		contributions, err := e.ledger.ListContributions(ctx, poolID)
		if err != nil {
			return nil, storageError(err)
		}

		contribution := model.Contribution{
			ID:            uuid.New(),
			PoolID:        poolID,
			ParticipantID: participantID,
			Quantity:      quantity,
			SubmittedAt:   e.clock.Now(),
			Status:        model.ContributionStatusActive,
		}

		contributors := activeContributors(contributions)
		contributors = append(contributors, participantID)

		updated := *pool
		updated.CurrentQuantity = sumActive(contributions) + quantity
		crossed := false
		if updated.CurrentQuantity >= updated.TargetQuantity {
			crossedAt := e.clock.Now()
			updated.State = model.PoolStateThresholdReached
			updated.ThresholdCrossedAt = &crossedAt
			crossed = true
		}

		err = e.ledger.InsertContribution(ctx, updated, pool.Version, contribution)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}

		updated.Version = pool.Version + 1
		result := &ContributionResult{
			Contribution:     contribution,
			Pool:             updated,
			CrossedThreshold: crossed,
		}
		if crossed {
			result.Contributors = contributors
		}
		return result, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

func (e *PoolEngine) WithdrawContribution(ctx context.Context, contributionID uuid.UUID) (*model.DemandPool, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		contribution, err := e.ledger.GetContribution(ctx, contributionID)
		if err != nil {
			return nil, storageError(err)
		}
		pool, err := e.ledger.GetPool(ctx, contribution.PoolID)
		if err != nil {
			return nil, storageError(err)
		}
		if pool.State != model.PoolStateOpen {
			if pool.State == model.PoolStateThresholdReached || pool.State == model.PoolStateFulfilling {
				return nil, fmt.Errorf("%w: pool is %s", ErrPoolAlreadyDecided, pool.State)
			}
			return nil, fmt.Errorf("%w: pool is %s", ErrPoolNotOpen, pool.State)
		}
		if contribution.Status == model.ContributionStatusWithdrawn {
			return pool, nil
		}

		updated := *pool
		updated.CurrentQuantity = pool.CurrentQuantity - contribution.Quantity

		err = e.ledger.WithdrawContribution(ctx, updated, pool.Version, contributionID)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		updated.Version = pool.Version + 1
		return &updated, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

// MarkFulfilling confirms the externally negotiated final price. Calling it
// again with the same price is a no-op success; a different price fails.
func (e *PoolEngine) MarkFulfilling(ctx context.Context, poolID uuid.UUID, finalUnitPrice float64) (*model.DemandPool, error) {
	if finalUnitPrice <= 0 {
		return nil, fmt.Errorf("%w: final unit price must be positive", ErrInvalidSpec)
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		pool, err := e.ledger.GetPool(ctx, poolID)
		if err != nil {
			return nil, storageError(err)
		}
		switch pool.State {
		case model.PoolStateFulfilling:
			if pool.FinalUnitPrice != nil && *pool.FinalUnitPrice == finalUnitPrice {
				return pool, nil
			}
			return nil, fmt.Errorf("%w: pool already fulfilling at a different price", ErrPriceMismatch)
		case model.PoolStateThresholdReached:
			// transition below
		default:
			return nil, fmt.Errorf("%w: pool is %s", ErrPoolNotOpen, pool.State)
		}

		updated := *pool
		updated.State = model.PoolStateFulfilling
		updated.FinalUnitPrice = &finalUnitPrice

		err = e.ledger.UpdatePool(ctx, updated, pool.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		updated.Version = pool.Version + 1
		return &updated, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

func (e *PoolEngine) CancelPool(ctx context.Context, poolID uuid.UUID) (*model.DemandPool, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		pool, err := e.ledger.GetPool(ctx, poolID)
		if err != nil {
			return nil, storageError(err)
		}
		if pool.State == model.PoolStateCancelled {
			return pool, nil
		}
		if !pool.Cancellable() {
			return nil, fmt.Errorf("%w: pool is %s", ErrPoolNotOpen, pool.State)
		}

		updated := *pool
		updated.State = model.PoolStateCancelled

		err = e.ledger.UpdatePool(ctx, updated, pool.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		updated.Version = pool.Version + 1
		return &updated, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

// ExpireOverdue moves pools past deliver_by into EXPIRED. Safe to run
// concurrently with itself and with user-triggered transitions: each pool is
// written under its version guard and conflicts are simply skipped, since a
// conflict means some other writer already transitioned the pool.
func (e *PoolEngine) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := e.ledger.ListOverduePools(ctx, e.clock.Now())
	if err != nil {
		return 0, storageError(err)
	}

	expired := 0
	for _, pool := range overdue {
		if !pool.Cancellable() {
			continue
		}
		updated := pool
		updated.State = model.PoolStateExpired
		err := e.ledger.UpdatePool(ctx, updated, pool.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return expired, storageError(err)
		}
		expired++
	}
	return expired, nil
}

func (e *PoolEngine) backoff(ctx context.Context, attempt int) error {
	delay := e.retryBackoff << (attempt - 1)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

func sumActive(contributions []model.Contribution) float64 {
	total := 0.0
	for _, c := range contributions {
		if c.Status == model.ContributionStatusActive {
			total += c.Quantity
		}
	}
	return total
}

func activeContributors(contributions []model.Contribution) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(contributions))
	var result []uuid.UUID
	for _, c := range contributions {
		if c.Status != model.ContributionStatusActive {
			continue
		}
		if _, ok := seen[c.ParticipantID]; ok {
			continue
		}
		seen[c.ParticipantID] = struct{}{}
		result = append(result, c.ParticipantID)
	}
	return result
}
