// Package memory provides an in-process ledger with the same version-guard
// semantics as the postgres repositories. It backs the engine and coordinator
// tests, where real goroutine races must resolve exactly like the SQL guards.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mavuno/demand-engine/internal/model"
	"github.com/mavuno/demand-engine/internal/repository"
)

type Ledger struct {
	mu            sync.Mutex
	pools         map[uuid.UUID]model.DemandPool
	contributions map[uuid.UUID]model.Contribution
	auctions      map[uuid.UUID]model.ReverseAuction
	bids          map[uuid.UUID]model.Bid
}

func NewLedger() *Ledger {
	return &Ledger{
		pools:         make(map[uuid.UUID]model.DemandPool),
		contributions: make(map[uuid.UUID]model.Contribution),
		auctions:      make(map[uuid.UUID]model.ReverseAuction),
		bids:          make(map[uuid.UUID]model.Bid),
	}
}

func (l *Ledger) CreatePool(_ context.Context, pool model.DemandPool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools[pool.ID] = pool
	return nil
}

func (l *Ledger) GetPool(_ context.Context, id uuid.UUID) (*model.DemandPool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pool, ok := l.pools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := pool
	return &copied, nil
}

func (l *Ledger) ListContributions(_ context.Context, poolID uuid.UUID) ([]model.Contribution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []model.Contribution
	for _, c := range l.contributions {
		if c.PoolID == poolID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[j].SubmittedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (l *Ledger) GetContribution(_ context.Context, id uuid.UUID) (*model.Contribution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	contribution, ok := l.contributions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := contribution
	return &copied, nil
}

func (l *Ledger) InsertContribution(_ context.Context, pool model.DemandPool, expectedVersion int64, contribution model.Contribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writePoolGuarded(pool, expectedVersion); err != nil {
		return err
	}
	l.contributions[contribution.ID] = contribution
	return nil
}

func (l *Ledger) WithdrawContribution(_ context.Context, pool model.DemandPool, expectedVersion int64, contributionID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	contribution, ok := l.contributions[contributionID]
	if !ok || contribution.Status != model.ContributionStatusActive {
		return repository.ErrVersionConflict
	}
	if err := l.writePoolGuarded(pool, expectedVersion); err != nil {
		return err
	}
	contribution.Status = model.ContributionStatusWithdrawn
	l.contributions[contributionID] = contribution
	return nil
}

func (l *Ledger) UpdatePool(_ context.Context, pool model.DemandPool, expectedVersion int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writePoolGuarded(pool, expectedVersion)
}

func (l *Ledger) writePoolGuarded(pool model.DemandPool, expectedVersion int64) error {
	stored, ok := l.pools[pool.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	pool.Version = expectedVersion + 1
	l.pools[pool.ID] = pool
	return nil
}

func (l *Ledger) ListOverduePools(_ context.Context, cutoff time.Time) ([]model.DemandPool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []model.DemandPool
	for _, pool := range l.pools {
		if pool.DeliverBy.Before(cutoff) && pool.Cancellable() {
			result = append(result, pool)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeliverBy.Before(result[j].DeliverBy) })
	return result, nil
}

func (l *Ledger) CreateAuction(_ context.Context, auction model.ReverseAuction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.auctions[auction.ID] = auction
	return nil
}

func (l *Ledger) GetAuction(_ context.Context, id uuid.UUID) (*model.ReverseAuction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	auction, ok := l.auctions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := auction
	return &copied, nil
}

func (l *Ledger) ListBids(_ context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []model.Bid
	for _, bid := range l.bids {
		if bid.AuctionID == auctionID {
			result = append(result, bid)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Price != result[j].Price {
			return result[i].Price < result[j].Price
		}
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[j].SubmittedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (l *Ledger) GetBid(_ context.Context, id uuid.UUID) (*model.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bid, ok := l.bids[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := bid
	return &copied, nil
}

func (l *Ledger) InsertBid(_ context.Context, bid model.Bid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	auction, ok := l.auctions[bid.AuctionID]
	if !ok || auction.State != model.AuctionStateOpen {
		return repository.ErrVersionConflict
	}
	l.bids[bid.ID] = bid
	return nil
}

func (l *Ledger) AwardAuction(_ context.Context, auction model.ReverseAuction, expectedVersion int64, winningBidID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	winner, ok := l.bids[winningBidID]
	if !ok || winner.Status != model.BidStatusPending {
		return repository.ErrVersionConflict
	}
	if err := l.writeAuctionGuarded(auction, expectedVersion); err != nil {
		return err
	}
	winner.Status = model.BidStatusAccepted
	l.bids[winningBidID] = winner
	for id, bid := range l.bids {
		if bid.AuctionID == auction.ID && id != winningBidID && bid.Status == model.BidStatusPending {
			bid.Status = model.BidStatusRejected
			l.bids[id] = bid
		}
	}
	return nil
}

func (l *Ledger) UpdateAuction(_ context.Context, auction model.ReverseAuction, expectedVersion int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeAuctionGuarded(auction, expectedVersion)
}

func (l *Ledger) writeAuctionGuarded(auction model.ReverseAuction, expectedVersion int64) error {
	stored, ok := l.auctions[auction.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	auction.Version = expectedVersion + 1
	l.auctions[auction.ID] = auction
	return nil
}

func (l *Ledger) ListOverdueAuctions(_ context.Context, cutoff time.Time) ([]model.ReverseAuction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []model.ReverseAuction
	for _, auction := range l.auctions {
		if auction.DeliverBy.Before(cutoff) && auction.State == model.AuctionStateOpen {
			result = append(result, auction)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeliverBy.Before(result[j].DeliverBy) })
	return result, nil
}
