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

// AuctionEngine owns the reverse-auction state machine. The engine enforces no
// pricing rule: bids only compete at award time, and the award is an explicit
// decision by the posting party over the sorted pending-bid view.
type AuctionEngine struct {
	ledger       AuctionLedger
	clock        Clock
	maxRetries   int
	retryBackoff time.Duration
}

func NewAuctionEngine(ledger AuctionLedger, clock Clock, cfg config.EngineConfig) *AuctionEngine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &AuctionEngine{
		ledger:       ledger,
		clock:        clock,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
	}
}

type AuctionSpec struct {
	Commodity   string
	Quantity    float64
	QualitySpec string
	DeliverBy   time.Time
	PostedBy    uuid.UUID
}

type AwardResult struct {
	Auction    model.ReverseAuction
	WinningBid model.Bid
}

func (e *AuctionEngine) CreateAuction(ctx context.Context, spec AuctionSpec) (*model.ReverseAuction, error) {
	if spec.Commodity == "" {
		return nil, fmt.Errorf("%w: commodity is required", ErrInvalidSpec)
	}
	if spec.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidSpec)
	}
	now := e.clock.Now()
	if !spec.DeliverBy.After(now) {
		return nil, fmt.Errorf("%w: deliver_by must be in the future", ErrInvalidSpec)
	}

	auction := model.ReverseAuction{
		ID:          uuid.New(),
		Commodity:   spec.Commodity,
		Quantity:    spec.Quantity,
		QualitySpec: spec.QualitySpec,
		DeliverBy:   spec.DeliverBy,
		State:       model.AuctionStateOpen,
		PostedBy:    spec.PostedBy,
		CreatedAt:   now,
		Version:     1,
	}
	if err := e.ledger.CreateAuction(ctx, auction); err != nil {
		return nil, storageError(err)
	}
	return &auction, nil
}

func (e *AuctionEngine) GetAuction(ctx context.Context, id uuid.UUID) (*model.ReverseAuction, error) {
	auction, err := e.ledger.GetAuction(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return auction, nil
}

// ListBids returns the auction's bids sorted by price ascending, ties broken
// by earliest submission. The ledger implementations already order this way.
func (e *AuctionEngine) ListBids(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	if _, err := e.ledger.GetAuction(ctx, auctionID); err != nil {
		return nil, storageError(err)
	}
	bids, err := e.ledger.ListBids(ctx, auctionID)
	if err != nil {
		return nil, storageError(err)
	}
	return bids, nil
}

// SubmitBid records a PENDING bid. Bids never compete at submission time, so
// any sane bid against an open auction succeeds.
func (e *AuctionEngine) SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, price float64, qualityOffer string) (*model.Bid, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidBid)
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		auction, err := e.ledger.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, storageError(err)
		}
		if auction.State != model.AuctionStateOpen {
			return nil, fmt.Errorf("%w: auction is %s", ErrAuctionNotOpen, auction.State)
		}

		bid := model.Bid{
			ID:           uuid.New(),
			AuctionID:    auctionID,
			BidderID:     bidderID,
			Price:        price,
			QualityOffer: qualityOffer,
			SubmittedAt:  e.clock.Now(),
			Status:       model.BidStatusPending,
		}

		err = e.ledger.InsertBid(ctx, bid)
		if errors.Is(err, repository.ErrVersionConflict) {
			// auction closed between the read and the insert
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		return &bid, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

// AcceptBid awards the auction to one bid. The auction version guards the
// transition, so for any set of concurrent accept calls exactly one wins; the
// rest observe AWARDED on their retry read and fail ErrAuctionAlreadyAwarded.
func (e *AuctionEngine) AcceptBid(ctx context.Context, auctionID, bidID uuid.UUID) (*AwardResult, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		auction, err := e.ledger.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, storageError(err)
		}
		if auction.State == model.AuctionStateAwarded {
			return nil, ErrAuctionAlreadyAwarded
		}
		if auction.State != model.AuctionStateOpen {
			return nil, fmt.Errorf("%w: auction is %s", ErrAuctionNotOpen, auction.State)
		}

		bid, err := e.ledger.GetBid(ctx, bidID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrBidNotFound
			}
			return nil, storageError(err)
		}
		if bid.AuctionID != auctionID {
			return nil, ErrBidNotFound
		}
		if bid.Status != model.BidStatusPending {
			return nil, ErrBidNotPending
		}

		winningBidID := bid.ID
		updated := *auction
		updated.State = model.AuctionStateAwarded
		updated.AwardedBidID = &winningBidID

		err = e.ledger.AwardAuction(ctx, updated, auction.Version, bidID)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}

		updated.Version = auction.Version + 1
		won := *bid
		won.Status = model.BidStatusAccepted
		return &AwardResult{Auction: updated, WinningBid: won}, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

func (e *AuctionEngine) CancelAuction(ctx context.Context, auctionID uuid.UUID) (*model.ReverseAuction, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		auction, err := e.ledger.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, storageError(err)
		}
		switch auction.State {
		case model.AuctionStateCancelled:
			return auction, nil
		case model.AuctionStateAwarded:
			return nil, ErrAuctionAlreadyAwarded
		case model.AuctionStateOpen:
			// transition below
		default:
			return nil, fmt.Errorf("%w: auction is %s", ErrAuctionNotOpen, auction.State)
		}

		updated := *auction
		updated.State = model.AuctionStateCancelled

		err = e.ledger.UpdateAuction(ctx, updated, auction.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		updated.Version = auction.Version + 1
		return &updated, nil
	}
	return nil, ErrConcurrentUpdateConflict
}

// ExpireOverdue moves open auctions past deliver_by into EXPIRED under the
// same guard-and-skip discipline as the pool sweep.
func (e *AuctionEngine) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := e.ledger.ListOverdueAuctions(ctx, e.clock.Now())
	if err != nil {
		return 0, storageError(err)
	}

	expired := 0
	for _, auction := range overdue {
		if auction.State != model.AuctionStateOpen {
			continue
		}
		updated := auction
		updated.State = model.AuctionStateExpired
		err := e.ledger.UpdateAuction(ctx, updated, auction.Version)
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

func (e *AuctionEngine) backoff(ctx context.Context, attempt int) error {
	delay := e.retryBackoff << (attempt - 1)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}
