package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mavuno/demand-engine/internal/auth"
	"github.com/mavuno/demand-engine/internal/engine"
	"github.com/mavuno/demand-engine/internal/events"
	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
)

// Authorizer is the external authorization collaborator; it is consulted
// before every mutation.
type Authorizer interface {
	CanActOn(ctx context.Context, actor model.Principal, aggregateID uuid.UUID, action string) (bool, error)
}

type StatementGenerator interface {
	Generate(statement model.PoolStatement) ([]byte, error)
}

type AwardNoteGenerator interface {
	Generate(note model.AwardNote) ([]byte, error)
}

// Coordinator is the single entry point for callers: it authorizes the actor,
// dispatches to the pool or auction engine, and publishes decision events
// after the deciding write has committed. Events are at-least-once; consumers
// de-duplicate by event id.
type Coordinator struct {
	pools      *engine.PoolEngine
	auctions   *engine.AuctionEngine
	authorizer Authorizer
	publisher  events.Publisher
	statements StatementGenerator
	awardNotes AwardNoteGenerator
	log        zerolog.Logger
}

type Deps struct {
	Pools      *engine.PoolEngine
	Auctions   *engine.AuctionEngine
	Authorizer Authorizer
	Publisher  events.Publisher
	Statements StatementGenerator
	AwardNotes AwardNoteGenerator
	Log        zerolog.Logger
}

func New(deps Deps) *Coordinator {
	return &Coordinator{
		pools:      deps.Pools,
		auctions:   deps.Auctions,
		authorizer: deps.Authorizer,
		publisher:  deps.Publisher,
		statements: deps.Statements,
		awardNotes: deps.AwardNotes,
		log:        deps.Log,
	}
}

type ExportResult struct {
	FileName string
	Content  []byte
}

func (c *Coordinator) CreatePool(ctx context.Context, actor model.Principal, spec engine.PoolSpec) (*model.DemandPool, error) {
	if err := c.authorize(ctx, actor, uuid.Nil, auth.ActionCreatePool); err != nil {
		return nil, err
	}
	spec.CreatedBy = actor.UserID
	return c.pools.CreatePool(ctx, spec)
}

func (c *Coordinator) Contribute(ctx context.Context, actor model.Principal, poolID uuid.UUID, quantity float64) (*engine.ContributionResult, error) {
	if err := c.authorize(ctx, actor, poolID, auth.ActionContribute); err != nil {
		return nil, err
	}

	result, err := c.pools.Contribute(ctx, poolID, actor.UserID, quantity)
	if err != nil {
		return nil, err
	}

	if result.CrossedThreshold {
		event := events.PoolThresholdReached{
			EventID:         uuid.New(),
			PoolID:          result.Pool.ID,
			CurrentQuantity: result.Pool.CurrentQuantity,
			Contributors:    result.Contributors,
			CrossedAt:       crossedAt(result.Pool),
		}
		c.publish(ctx, events.RoutingKeyPoolThresholdReached, event.EventID, event)
	}
	return result, nil
}

func (c *Coordinator) WithdrawContribution(ctx context.Context, actor model.Principal, contributionID uuid.UUID) (*model.DemandPool, error) {
	if err := c.authorize(ctx, actor, contributionID, auth.ActionWithdrawContribution); err != nil {
		return nil, err
	}
	return c.pools.WithdrawContribution(ctx, contributionID)
}

func (c *Coordinator) MarkFulfilling(ctx context.Context, actor model.Principal, poolID uuid.UUID, finalUnitPrice float64) (*model.DemandPool, error) {
	if err := c.authorize(ctx, actor, poolID, auth.ActionMarkFulfilling); err != nil {
		return nil, err
	}
	return c.pools.MarkFulfilling(ctx, poolID, finalUnitPrice)
}

func (c *Coordinator) CancelPool(ctx context.Context, actor model.Principal, poolID uuid.UUID) (*model.DemandPool, error) {
	if err := c.authorize(ctx, actor, poolID, auth.ActionCancelPool); err != nil {
		return nil, err
	}
	return c.pools.CancelPool(ctx, poolID)
}

func (c *Coordinator) GetPool(ctx context.Context, poolID uuid.UUID) (*model.DemandPool, error) {
	return c.pools.GetPool(ctx, poolID)
}

func (c *Coordinator) ListContributions(ctx context.Context, poolID uuid.UUID) ([]model.Contribution, error) {
	return c.pools.ListContributions(ctx, poolID)
}

func (c *Coordinator) CreateAuction(ctx context.Context, actor model.Principal, spec engine.AuctionSpec) (*model.ReverseAuction, error) {
	if err := c.authorize(ctx, actor, uuid.Nil, auth.ActionCreateAuction); err != nil {
		return nil, err
	}
	spec.PostedBy = actor.UserID
	return c.auctions.CreateAuction(ctx, spec)
}

func (c *Coordinator) SubmitBid(ctx context.Context, actor model.Principal, auctionID uuid.UUID, price float64, qualityOffer string) (*model.Bid, error) {
	if err := c.authorize(ctx, actor, auctionID, auth.ActionSubmitBid); err != nil {
		return nil, err
	}
	return c.auctions.SubmitBid(ctx, auctionID, actor.UserID, price, qualityOffer)
}

func (c *Coordinator) AcceptBid(ctx context.Context, actor model.Principal, auctionID, bidID uuid.UUID) (*engine.AwardResult, error) {
	if err := c.authorize(ctx, actor, auctionID, auth.ActionAcceptBid); err != nil {
		return nil, err
	}

	result, err := c.auctions.AcceptBid(ctx, auctionID, bidID)
	if err != nil {
		return nil, err
	}

	event := events.AuctionAwarded{
		EventID:      uuid.New(),
		AuctionID:    result.Auction.ID,
		WinningBidID: result.WinningBid.ID,
		AwardedAt:    time.Now().UTC(),
	}
	c.publish(ctx, events.RoutingKeyAuctionAwarded, event.EventID, event)
	return result, nil
}

func (c *Coordinator) CancelAuction(ctx context.Context, actor model.Principal, auctionID uuid.UUID) (*model.ReverseAuction, error) {
	if err := c.authorize(ctx, actor, auctionID, auth.ActionCancelAuction); err != nil {
		return nil, err
	}
	return c.auctions.CancelAuction(ctx, auctionID)
}

func (c *Coordinator) GetAuction(ctx context.Context, auctionID uuid.UUID) (*model.ReverseAuction, error) {
	return c.auctions.GetAuction(ctx, auctionID)
}

func (c *Coordinator) ListBids(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	return c.auctions.ListBids(ctx, auctionID)
}

func (c *Coordinator) ExportPoolStatement(ctx context.Context, poolID uuid.UUID) (*ExportResult, error) {
	pool, err := c.pools.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	contributions, err := c.pools.ListContributions(ctx, poolID)
	if err != nil {
		return nil, err
	}

	content, err := c.statements.Generate(model.PoolStatement{
		Pool:          *pool,
		Contributions: contributions,
	})
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("pool-%s-%s.xlsx", shortID(pool.ID), strings.ToLower(string(pool.State))),
		Content:  content,
	}, nil
}

func (c *Coordinator) ExportAwardNote(ctx context.Context, auctionID uuid.UUID) (*ExportResult, error) {
	auction, err := c.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.State != model.AuctionStateAwarded || auction.AwardedBidID == nil {
		return nil, fmt.Errorf("%w: auction is not awarded", engine.ErrNotFound)
	}

	bids, err := c.auctions.ListBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	note := model.AwardNote{Auction: *auction}
	for _, bid := range bids {
		switch bid.Status {
		case model.BidStatusAccepted:
			note.WinningBid = bid
		case model.BidStatusRejected:
			note.RejectedBids = append(note.RejectedBids, bid)
		}
	}

	content, err := c.awardNotes.Generate(note)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("award-%s.pdf", shortID(auction.ID)),
		Content:  content,
	}, nil
}

func (c *Coordinator) authorize(ctx context.Context, actor model.Principal, aggregateID uuid.UUID, action string) error {
	allowed, err := c.authorizer.CanActOn(ctx, actor, aggregateID, action)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return engine.ErrNotFound
		}
		return fmt.Errorf("%w: authorization check failed: %v", engine.ErrStorageUnavailable, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", engine.ErrUnauthorized, action)
	}
	return nil
}

// publish runs after the deciding transaction has committed. A failure here
// cannot undo the decision, so it is logged and the call still succeeds;
// delivery is at-least-once only once the broker accepts the message.
func (c *Coordinator) publish(ctx context.Context, routingKey string, eventID uuid.UUID, event interface{}) {
	if err := c.publisher.Publish(ctx, routingKey, event); err != nil {
		c.log.Error().
			Err(err).
			Str("routing_key", routingKey).
			Str("event_id", eventID.String()).
			Msg("decision event publish failed")
	}
}

func crossedAt(pool model.DemandPool) time.Time {
	if pool.ThresholdCrossedAt != nil {
		return *pool.ThresholdCrossedAt
	}
	return time.Time{}
}

func shortID(id uuid.UUID) string {
	return strings.Split(id.String(), "-")[0]
}
