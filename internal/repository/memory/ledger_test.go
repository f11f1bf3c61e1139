package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
)

func seedPool(t *testing.T, ledger *Ledger) model.DemandPool {
	t.Helper()
	pool := model.DemandPool{
		ID:             uuid.New(),
		ResourceKind:   "DAP fertilizer 50kg",
		TargetQuantity: 100,
		DeliverBy:      time.Now().Add(24 * time.Hour),
		State:          model.PoolStateOpen,
		CreatedBy:      uuid.New(),
		CreatedAt:      time.Now(),
		Version:        1,
	}
	require.NoError(t, ledger.CreatePool(context.Background(), pool))
	return pool
}

func seedAuction(t *testing.T, ledger *Ledger) model.ReverseAuction {
	t.Helper()
	auction := model.ReverseAuction{
		ID:        uuid.New(),
		Commodity: "grade 1 maize",
		Quantity:  2000,
		DeliverBy: time.Now().Add(24 * time.Hour),
		State:     model.AuctionStateOpen,
		PostedBy:  uuid.New(),
		CreatedAt: time.Now(),
		Version:   1,
	}
	require.NoError(t, ledger.CreateAuction(context.Background(), auction))
	return auction
}

func TestLedger_UpdatePool_VersionGuard(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	pool := seedPool(t, ledger)

	updated := pool
	updated.CurrentQuantity = 40
	require.NoError(t, ledger.UpdatePool(ctx, updated, 1))

	stored, err := ledger.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, 40.0, stored.CurrentQuantity)

	// a write against the old version loses
	stale := pool
	stale.CurrentQuantity = 70
	err = ledger.UpdatePool(ctx, stale, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	stored, err = ledger.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, stored.CurrentQuantity)

	err = ledger.UpdatePool(ctx, model.DemandPool{ID: uuid.New()}, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedger_InsertContribution_GuardRejectsStaleWrite(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	pool := seedPool(t, ledger)

	contribution := model.Contribution{
		ID:            uuid.New(),
		PoolID:        pool.ID,
		ParticipantID: uuid.New(),
		Quantity:      40,
		Status:        model.ContributionStatusActive,
		SubmittedAt:   time.Now(),
	}
	updated := pool
	updated.CurrentQuantity = 40
	require.NoError(t, ledger.InsertContribution(ctx, updated, 1, contribution))

	// the stale writer conflicts and its contribution row is not recorded
	other := model.Contribution{ID: uuid.New(), PoolID: pool.ID, Quantity: 30, Status: model.ContributionStatusActive}
	err := ledger.InsertContribution(ctx, updated, 1, other)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	contributions, err := ledger.ListContributions(ctx, pool.ID)
	require.NoError(t, err)
	assert.Len(t, contributions, 1)
}

func TestLedger_WithdrawContribution_OnlyActiveRows(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	pool := seedPool(t, ledger)

	contribution := model.Contribution{
		ID:          uuid.New(),
		PoolID:      pool.ID,
		Quantity:    40,
		Status:      model.ContributionStatusActive,
		SubmittedAt: time.Now(),
	}
	updated := pool
	updated.CurrentQuantity = 40
	require.NoError(t, ledger.InsertContribution(ctx, updated, 1, contribution))

	reverted := updated
	reverted.CurrentQuantity = 0
	require.NoError(t, ledger.WithdrawContribution(ctx, reverted, 2, contribution.ID))

	stored, err := ledger.GetContribution(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContributionStatusWithdrawn, stored.Status)

	// a second withdraw finds no active row
	err = ledger.WithdrawContribution(ctx, reverted, 3, contribution.ID)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestLedger_InsertBid_RequiresOpenAuction(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	auction := seedAuction(t, ledger)

	bid := model.Bid{ID: uuid.New(), AuctionID: auction.ID, Price: 480, Status: model.BidStatusPending}
	require.NoError(t, ledger.InsertBid(ctx, bid))

	closed := auction
	closed.State = model.AuctionStateCancelled
	require.NoError(t, ledger.UpdateAuction(ctx, closed, 1))

	late := model.Bid{ID: uuid.New(), AuctionID: auction.ID, Price: 470, Status: model.BidStatusPending}
	err := ledger.InsertBid(ctx, late)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestLedger_AwardAuction_SettlesAllBids(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	auction := seedAuction(t, ledger)

	base := time.Now()
	prices := []float64{500, 480, 510}
	bids := make([]model.Bid, len(prices))
	for i, price := range prices {
		bids[i] = model.Bid{
			ID:          uuid.New(),
			AuctionID:   auction.ID,
			BidderID:    uuid.New(),
			Price:       price,
			Status:      model.BidStatusPending,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, ledger.InsertBid(ctx, bids[i]))
	}

	winnerID := bids[1].ID
	awarded := auction
	awarded.State = model.AuctionStateAwarded
	awarded.AwardedBidID = &winnerID
	require.NoError(t, ledger.AwardAuction(ctx, awarded, 1, winnerID))

	// the stale awarder loses
	err := ledger.AwardAuction(ctx, awarded, 1, bids[0].ID)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	stored, err := ledger.ListBids(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	// sorted ascending by price
	assert.Equal(t, 480.0, stored[0].Price)
	assert.Equal(t, model.BidStatusAccepted, stored[0].Status)
	assert.Equal(t, model.BidStatusRejected, stored[1].Status)
	assert.Equal(t, model.BidStatusRejected, stored[2].Status)
}
