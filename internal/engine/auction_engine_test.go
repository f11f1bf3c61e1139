package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavuno/demand-engine/internal/config"
	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository/memory"
)

func newAuctionEngine(t *testing.T) (*AuctionEngine, *memory.Ledger, *fakeClock) {
	t.Helper()
	ledger := memory.NewLedger()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	eng := NewAuctionEngine(ledger, clock, config.EngineConfig{MaxRetries: 10, RetryBackoff: time.Millisecond})
	return eng, ledger, clock
}

func openAuction(t *testing.T, eng *AuctionEngine, clock *fakeClock) *model.ReverseAuction {
	t.Helper()
	auction, err := eng.CreateAuction(context.Background(), AuctionSpec{
		Commodity:   "grade 1 maize",
		Quantity:    2000,
		QualitySpec: "moisture below 13.5%",
		DeliverBy:   clock.Now().Add(7 * 24 * time.Hour),
		PostedBy:    uuid.New(),
	})
	require.NoError(t, err)
	return auction
}

func TestAuctionEngine_CreateAuction_Validation(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	future := clock.Now().Add(24 * time.Hour)

	tests := []struct {
		name string
		spec AuctionSpec
	}{
		{
			name: "missing commodity",
			spec: AuctionSpec{Quantity: 100, DeliverBy: future},
		},
		{
			name: "zero quantity",
			spec: AuctionSpec{Commodity: "maize", Quantity: 0, DeliverBy: future},
		},
		{
			name: "deliver_by in the past",
			spec: AuctionSpec{Commodity: "maize", Quantity: 100, DeliverBy: clock.Now().Add(-time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.CreateAuction(context.Background(), tt.spec)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestAuctionEngine_SubmitBid(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	auction := openAuction(t, eng, clock)
	ctx := context.Background()

	bid, err := eng.SubmitBid(ctx, auction.ID, uuid.New(), 480, "EU cert available")
	require.NoError(t, err)
	assert.Equal(t, model.BidStatusPending, bid.Status)
	assert.Equal(t, auction.ID, bid.AuctionID)

	_, err = eng.SubmitBid(ctx, auction.ID, uuid.New(), 0, "")
	assert.ErrorIs(t, err, ErrInvalidBid)

	_, err = eng.SubmitBid(ctx, auction.ID, uuid.New(), -12, "")
	assert.ErrorIs(t, err, ErrInvalidBid)

	_, err = eng.SubmitBid(ctx, uuid.New(), uuid.New(), 480, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuctionEngine_ListBids_SortedByPrice(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	auction := openAuction(t, eng, clock)
	ctx := context.Background()

	for _, price := range []float64{500, 480, 510} {
		_, err := eng.SubmitBid(ctx, auction.ID, uuid.New(), price, "")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	bids, err := eng.ListBids(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, 480.0, bids[0].Price)
	assert.Equal(t, 500.0, bids[1].Price)
	assert.Equal(t, 510.0, bids[2].Price)
}

func TestAuctionEngine_AcceptBid_ExactlyOnce(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	auction := openAuction(t, eng, clock)
	ctx := context.Background()

	bids := make([]*model.Bid, 3)
	for i, price := range []float64{500, 480, 510} {
		bid, err := eng.SubmitBid(ctx, auction.ID, uuid.New(), price, "")
		require.NoError(t, err)
		bids[i] = bid
	}

	// two callers race to award different bids
	results := make([]*AwardResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, bid := range bids[:2] {
		wg.Add(1)
		go func(i int, bidID uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = eng.AcceptBid(ctx, auction.ID, bidID)
		}(i, bid.ID)
	}
	wg.Wait()

	awards := 0
	var winner uuid.UUID
	for i := range results {
		if errs[i] == nil {
			awards++
			winner = results[i].WinningBid.ID
			assert.Equal(t, model.AuctionStateAwarded, results[i].Auction.State)
			assert.Equal(t, model.BidStatusAccepted, results[i].WinningBid.Status)
		} else {
			assert.ErrorIs(t, errs[i], ErrAuctionAlreadyAwarded)
		}
	}
	require.Equal(t, 1, awards, "exactly one accept must win")

	final, err := eng.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateAwarded, final.State)
	require.NotNil(t, final.AwardedBidID)
	assert.Equal(t, winner, *final.AwardedBidID)

	stored, err := eng.ListBids(ctx, auction.ID)
	require.NoError(t, err)
	accepted, rejected := 0, 0
	for _, bid := range stored {
		switch bid.Status {
		case model.BidStatusAccepted:
			accepted++
			assert.Equal(t, winner, bid.ID)
		case model.BidStatusRejected:
			rejected++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 2, rejected)

	// no further award or bid lands
	_, err = eng.AcceptBid(ctx, auction.ID, bids[2].ID)
	assert.ErrorIs(t, err, ErrAuctionAlreadyAwarded)
	_, err = eng.SubmitBid(ctx, auction.ID, uuid.New(), 470, "")
	assert.ErrorIs(t, err, ErrAuctionNotOpen)
}

func TestAuctionEngine_AcceptBid_WrongAuction(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	first := openAuction(t, eng, clock)
	second := openAuction(t, eng, clock)
	ctx := context.Background()

	bid, err := eng.SubmitBid(ctx, first.ID, uuid.New(), 480, "")
	require.NoError(t, err)

	_, err = eng.AcceptBid(ctx, second.ID, bid.ID)
	assert.ErrorIs(t, err, ErrBidNotFound)

	_, err = eng.AcceptBid(ctx, first.ID, uuid.New())
	assert.ErrorIs(t, err, ErrBidNotFound)
}

func TestAuctionEngine_CancelAuction(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	auction := openAuction(t, eng, clock)
	ctx := context.Background()

	cancelled, err := eng.CancelAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateCancelled, cancelled.State)

	// cancelling again is a no-op
	again, err := eng.CancelAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateCancelled, again.State)

	_, err = eng.SubmitBid(ctx, auction.ID, uuid.New(), 480, "")
	assert.ErrorIs(t, err, ErrAuctionNotOpen)

	// an awarded auction cannot be cancelled
	awarded := openAuction(t, eng, clock)
	bid, err := eng.SubmitBid(ctx, awarded.ID, uuid.New(), 480, "")
	require.NoError(t, err)
	_, err = eng.AcceptBid(ctx, awarded.ID, bid.ID)
	require.NoError(t, err)
	_, err = eng.CancelAuction(ctx, awarded.ID)
	assert.ErrorIs(t, err, ErrAuctionAlreadyAwarded)
}

func TestAuctionEngine_ExpireOverdue_Idempotent(t *testing.T) {
	eng, _, clock := newAuctionEngine(t)
	ctx := context.Background()

	overdue := openAuction(t, eng, clock)
	clock.Advance(8 * 24 * time.Hour)
	live := openAuction(t, eng, clock)

	expired, err := eng.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	expired, err = eng.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	auction, err := eng.GetAuction(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateExpired, auction.State)

	still, err := eng.GetAuction(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateOpen, still.State)
}
