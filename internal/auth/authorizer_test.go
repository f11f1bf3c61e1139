package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
	"github.com/mavuno/demand-engine/internal/repository/memory"
)

func TestRoleAuthorizer_CanActOn(t *testing.T) {
	ledger := memory.NewLedger()
	ctx := context.Background()

	owner := uuid.New()
	participant := uuid.New()
	stranger := model.Principal{UserID: uuid.New(), Role: model.RoleFarmer}
	admin := model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}

	pool := model.DemandPool{
		ID:             uuid.New(),
		ResourceKind:   "certified seed potato",
		TargetQuantity: 100,
		DeliverBy:      time.Now().Add(24 * time.Hour),
		State:          model.PoolStateOpen,
		CreatedBy:      owner,
		Version:        1,
	}
	require.NoError(t, ledger.CreatePool(ctx, pool))

	contribution := model.Contribution{
		ID:            uuid.New(),
		PoolID:        pool.ID,
		ParticipantID: participant,
		Quantity:      20,
		Status:        model.ContributionStatusActive,
	}
	withContribution := pool
	withContribution.CurrentQuantity = 20
	require.NoError(t, ledger.InsertContribution(ctx, withContribution, 1, contribution))

	auction := model.ReverseAuction{
		ID:        uuid.New(),
		Commodity: "grade 1 maize",
		Quantity:  500,
		DeliverBy: time.Now().Add(24 * time.Hour),
		State:     model.AuctionStateOpen,
		PostedBy:  owner,
		Version:   1,
	}
	require.NoError(t, ledger.CreateAuction(ctx, auction))

	authorizer := NewRoleAuthorizer(ledger, ledger)

	tests := []struct {
		name    string
		actor   model.Principal
		target  uuid.UUID
		action  string
		allowed bool
	}{
		{"anyone may contribute", stranger, pool.ID, ActionContribute, true},
		{"anyone may bid", stranger, auction.ID, ActionSubmitBid, true},
		{"participant withdraws own contribution", model.Principal{UserID: participant, Role: model.RoleFarmer}, contribution.ID, ActionWithdrawContribution, true},
		{"stranger cannot withdraw", stranger, contribution.ID, ActionWithdrawContribution, false},
		{"creator cancels pool", model.Principal{UserID: owner, Role: model.RoleFarmer}, pool.ID, ActionCancelPool, true},
		{"stranger cannot cancel pool", stranger, pool.ID, ActionCancelPool, false},
		{"creator marks fulfilling", model.Principal{UserID: owner, Role: model.RoleFarmer}, pool.ID, ActionMarkFulfilling, true},
		{"poster accepts bid", model.Principal{UserID: owner, Role: model.RoleFarmer}, auction.ID, ActionAcceptBid, true},
		{"stranger cannot accept bid", stranger, auction.ID, ActionAcceptBid, false},
		{"admin may do anything", admin, auction.ID, ActionCancelAuction, true},
		{"unknown action denied", stranger, pool.ID, "pool.reindex", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := authorizer.CanActOn(ctx, tt.actor, tt.target, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestRoleAuthorizer_AnonymousDenied(t *testing.T) {
	ledger := memory.NewLedger()
	authorizer := NewRoleAuthorizer(ledger, ledger)

	allowed, err := authorizer.CanActOn(context.Background(), model.Principal{}, uuid.New(), ActionContribute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRoleAuthorizer_UnknownAggregate(t *testing.T) {
	ledger := memory.NewLedger()
	authorizer := NewRoleAuthorizer(ledger, ledger)
	actor := model.Principal{UserID: uuid.New(), Role: model.RoleFarmer}

	_, err := authorizer.CanActOn(context.Background(), actor, uuid.New(), ActionCancelPool)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
