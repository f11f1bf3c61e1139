package model

import (
	"time"

	"github.com/google/uuid"
)

type PoolState string

const (
	PoolStateOpen             PoolState = "OPEN"
	PoolStateThresholdReached PoolState = "THRESHOLD_REACHED"
	PoolStateFulfilling       PoolState = "FULFILLING"
	PoolStateCancelled        PoolState = "CANCELLED"
	PoolStateExpired          PoolState = "EXPIRED"
)

// Terminal reports whether no further transition is possible from the state.
func (s PoolState) Terminal() bool {
	return s == PoolStateFulfilling || s == PoolStateCancelled || s == PoolStateExpired
}

type ContributionStatus string

const (
	ContributionStatusActive    ContributionStatus = "ACTIVE"
	ContributionStatusWithdrawn ContributionStatus = "WITHDRAWN"
)

// DemandPool aggregates independent contributions toward a shared quantity
// target. CurrentQuantity is always recomputed from the active contribution
// set inside the same transaction that writes it; Version guards every write.
type DemandPool struct {
	ID                 uuid.UUID
	ResourceKind       string
	TargetQuantity     float64
	TargetUnitPrice    *float64
	CurrentQuantity    float64
	DeliveryLocation   string
	DeliverBy          time.Time
	State              PoolState
	ThresholdCrossedAt *time.Time
	FinalUnitPrice     *float64
	CreatedBy          uuid.UUID
	CreatedAt          time.Time
	Version            int64
}

// Cancellable reports whether the pool may still move to CANCELLED or EXPIRED.
func (p *DemandPool) Cancellable() bool {
	return p.State == PoolStateOpen || p.State == PoolStateThresholdReached
}

type Contribution struct {
	ID            uuid.UUID
	PoolID        uuid.UUID
	ParticipantID uuid.UUID
	Quantity      float64
	SubmittedAt   time.Time
	Status        ContributionStatus
}
