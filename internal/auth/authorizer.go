package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/mavuno/demand-engine/internal/model"
)

// Actions checked before any engine mutation. For withdraw the aggregate ID is
// the contribution ID; for everything else it is the pool or auction ID.
const (
	ActionCreatePool           = "pool.create"
	ActionContribute           = "pool.contribute"
	ActionWithdrawContribution = "contribution.withdraw"
	ActionMarkFulfilling       = "pool.mark_fulfilling"
	ActionCancelPool           = "pool.cancel"
	ActionCreateAuction        = "auction.create"
	ActionSubmitBid            = "auction.submit_bid"
	ActionAcceptBid            = "auction.accept_bid"
	ActionCancelAuction        = "auction.cancel"
)

type PoolDirectory interface {
	GetPool(ctx context.Context, id uuid.UUID) (*model.DemandPool, error)
	GetContribution(ctx context.Context, id uuid.UUID) (*model.Contribution, error)
}

type AuctionDirectory interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*model.ReverseAuction, error)
}

// RoleAuthorizer is the default authorization provider: creators own their
// aggregates, participants own their contributions, any authenticated caller
// may contribute or bid, admins may do anything.
type RoleAuthorizer struct {
	pools    PoolDirectory
	auctions AuctionDirectory
}

func NewRoleAuthorizer(pools PoolDirectory, auctions AuctionDirectory) *RoleAuthorizer {
	return &RoleAuthorizer{pools: pools, auctions: auctions}
}

func (a *RoleAuthorizer) CanActOn(ctx context.Context, actor model.Principal, aggregateID uuid.UUID, action string) (bool, error) {
	if actor.UserID == uuid.Nil {
		return false, nil
	}
	if actor.IsAdmin() {
		return true, nil
	}

	switch action {
	case ActionCreatePool, ActionContribute, ActionCreateAuction, ActionSubmitBid:
		return true, nil

	case ActionWithdrawContribution:
		contribution, err := a.pools.GetContribution(ctx, aggregateID)
		if err != nil {
			return false, err
		}
		return contribution.ParticipantID == actor.UserID, nil

	case ActionMarkFulfilling, ActionCancelPool:
		pool, err := a.pools.GetPool(ctx, aggregateID)
		if err != nil {
			return false, err
		}
		return pool.CreatedBy == actor.UserID, nil

	case ActionAcceptBid, ActionCancelAuction:
		auction, err := a.auctions.GetAuction(ctx, aggregateID)
		if err != nil {
			return false, err
		}
		return auction.PostedBy == actor.UserID, nil
	}
	return false, nil
}
