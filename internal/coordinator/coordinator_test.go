package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavuno/demand-engine/internal/auth"
	"github.com/mavuno/demand-engine/internal/config"
	"github.com/mavuno/demand-engine/internal/engine"
	"github.com/mavuno/demand-engine/internal/events"
	"github.com/mavuno/demand-engine/internal/export"
	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository/memory"
)

func newCoordinator(t *testing.T) (*Coordinator, *events.MemoryPublisher) {
	t.Helper()
	ledger := memory.NewLedger()
	clock := engine.SystemClock()
	cfg := config.EngineConfig{MaxRetries: 5, RetryBackoff: time.Millisecond}
	publisher := events.NewMemoryPublisher()

	c := New(Deps{
		Pools:      engine.NewPoolEngine(ledger, clock, cfg),
		Auctions:   engine.NewAuctionEngine(ledger, clock, cfg),
		Authorizer: auth.NewRoleAuthorizer(ledger, ledger),
		Publisher:  publisher,
		Statements: export.NewStatementGenerator(),
		AwardNotes: export.NewAwardNoteGenerator(),
		Log:        zerolog.Nop(),
	})
	return c, publisher
}

func farmer() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleFarmer}
}

func supplier() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleSupplier}
}

func poolSpec() engine.PoolSpec {
	return engine.PoolSpec{
		ResourceKind:     "CAN fertilizer 50kg",
		TargetQuantity:   100,
		DeliveryLocation: "Eldoret depot",
		DeliverBy:        time.Now().Add(14 * 24 * time.Hour),
	}
}

func auctionSpec() engine.AuctionSpec {
	return engine.AuctionSpec{
		Commodity:   "grade 1 maize",
		Quantity:    2000,
		QualitySpec: "moisture below 13.5%",
		DeliverBy:   time.Now().Add(7 * 24 * time.Hour),
	}
}

func TestCoordinator_CreatePool_StampsCreator(t *testing.T) {
	c, _ := newCoordinator(t)
	actor := farmer()

	pool, err := c.CreatePool(context.Background(), actor, poolSpec())
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, pool.CreatedBy)
}

func TestCoordinator_AnonymousActorRejected(t *testing.T) {
	c, _ := newCoordinator(t)

	_, err := c.CreatePool(context.Background(), model.Principal{}, poolSpec())
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
}

func TestCoordinator_CancelPool_OnlyCreatorOrAdmin(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	creator := farmer()

	pool, err := c.CreatePool(ctx, creator, poolSpec())
	require.NoError(t, err)

	_, err = c.CancelPool(ctx, farmer(), pool.ID)
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	admin := model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
	cancelled, err := c.CancelPool(ctx, admin, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PoolStateCancelled, cancelled.State)
}

func TestCoordinator_Withdraw_OnlyParticipant(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	participant := farmer()

	pool, err := c.CreatePool(ctx, farmer(), poolSpec())
	require.NoError(t, err)
	result, err := c.Contribute(ctx, participant, pool.ID, 30)
	require.NoError(t, err)

	_, err = c.WithdrawContribution(ctx, farmer(), result.Contribution.ID)
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	updated, err := c.WithdrawContribution(ctx, participant, result.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, updated.CurrentQuantity)
}

func TestCoordinator_ThresholdEventPublishedOnce(t *testing.T) {
	c, publisher := newCoordinator(t)
	ctx := context.Background()

	pool, err := c.CreatePool(ctx, farmer(), poolSpec())
	require.NoError(t, err)

	_, err = c.Contribute(ctx, farmer(), pool.ID, 60)
	require.NoError(t, err)
	assert.Empty(t, publisher.Published())

	result, err := c.Contribute(ctx, farmer(), pool.ID, 50)
	require.NoError(t, err)
	require.True(t, result.CrossedThreshold)

	published := publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.RoutingKeyPoolThresholdReached, published[0].RoutingKey)

	event, ok := published[0].Event.(events.PoolThresholdReached)
	require.True(t, ok)
	assert.Equal(t, pool.ID, event.PoolID)
	assert.Equal(t, 110.0, event.CurrentQuantity)
	assert.Len(t, event.Contributors, 2)
	assert.NotEqual(t, uuid.Nil, event.EventID)
}

func TestCoordinator_AwardEventPublished(t *testing.T) {
	c, publisher := newCoordinator(t)
	ctx := context.Background()
	poster := farmer()

	auction, err := c.CreateAuction(ctx, poster, auctionSpec())
	require.NoError(t, err)
	bid, err := c.SubmitBid(ctx, supplier(), auction.ID, 480, "EU cert available")
	require.NoError(t, err)

	// only the poster may award
	_, err = c.AcceptBid(ctx, supplier(), auction.ID, bid.ID)
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
	assert.Empty(t, publisher.Published())

	result, err := c.AcceptBid(ctx, poster, auction.ID, bid.ID)
	require.NoError(t, err)

	published := publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.RoutingKeyAuctionAwarded, published[0].RoutingKey)

	event, ok := published[0].Event.(events.AuctionAwarded)
	require.True(t, ok)
	assert.Equal(t, auction.ID, event.AuctionID)
	assert.Equal(t, result.WinningBid.ID, event.WinningBidID)
}

func TestCoordinator_UnknownAggregate(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := c.CancelPool(ctx, farmer(), uuid.New())
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = c.GetAuction(ctx, uuid.New())
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestCoordinator_ExportPoolStatement(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	pool, err := c.CreatePool(ctx, farmer(), poolSpec())
	require.NoError(t, err)
	_, err = c.Contribute(ctx, farmer(), pool.ID, 40)
	require.NoError(t, err)

	result, err := c.ExportPoolStatement(ctx, pool.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
	assert.Contains(t, result.FileName, ".xlsx")
	assert.Contains(t, result.FileName, "open")
}

func TestCoordinator_ExportAwardNote(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	poster := farmer()

	auction, err := c.CreateAuction(ctx, poster, auctionSpec())
	require.NoError(t, err)

	// not exportable before award
	_, err = c.ExportAwardNote(ctx, auction.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	winner, err := c.SubmitBid(ctx, supplier(), auction.ID, 480, "")
	require.NoError(t, err)
	_, err = c.SubmitBid(ctx, supplier(), auction.ID, 510, "")
	require.NoError(t, err)
	_, err = c.AcceptBid(ctx, poster, auction.ID, winner.ID)
	require.NoError(t, err)

	result, err := c.ExportAwardNote(ctx, auction.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
	assert.Contains(t, result.FileName, ".pdf")
}
