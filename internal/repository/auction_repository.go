package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mavuno/demand-engine/internal/model"
)

type AuctionRepository struct {
	db *gorm.DB
}

func NewAuctionRepository(db *gorm.DB) *AuctionRepository {
	return &AuctionRepository{db: db}
}

func (r *AuctionRepository) CreateAuction(ctx context.Context, auction model.ReverseAuction) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO reverse_auctions (
			id,
			commodity,
			quantity,
			quality_spec,
			deliver_by,
			state,
			posted_by,
			created_at,
			version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		auction.ID,
		auction.Commodity,
		auction.Quantity,
		auction.QualitySpec,
		auction.DeliverBy,
		auction.State,
		auction.PostedBy,
		auction.CreatedAt,
		auction.Version,
	).Error
}

func (r *AuctionRepository) GetAuction(ctx context.Context, id uuid.UUID) (*model.ReverseAuction, error) {
	var auction model.ReverseAuction
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			commodity,
			quantity,
			quality_spec,
			deliver_by,
			state,
			awarded_bid_id,
			posted_by,
			created_at,
			version
		FROM reverse_auctions
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&auction).Error
	if err != nil {
		return nil, err
	}
	if auction.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &auction, nil
}

func (r *AuctionRepository) ListBids(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	var bids []model.Bid
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, auction_id, bidder_id, price, quality_offer, submitted_at, status
		FROM bids
		WHERE auction_id = ?
		ORDER BY price ASC, submitted_at ASC, id ASC
	`, auctionID).Scan(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *AuctionRepository) GetBid(ctx context.Context, id uuid.UUID) (*model.Bid, error) {
	var bid model.Bid
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, auction_id, bidder_id, price, quality_offer, submitted_at, status
		FROM bids
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&bid).Error
	if err != nil {
		return nil, err
	}
	if bid.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &bid, nil
}

// InsertBid only lands while the auction row is still OPEN; a closed auction
// surfaces as ErrVersionConflict so the caller re-reads and reports the state.
func (r *AuctionRepository) InsertBid(ctx context.Context, bid model.Bid) error {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO bids (id, auction_id, bidder_id, price, quality_offer, submitted_at, status)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM reverse_auctions WHERE id = ? AND state = ?
		)
	`,
		bid.ID,
		bid.AuctionID,
		bid.BidderID,
		bid.Price,
		bid.QualityOffer,
		bid.SubmittedAt,
		bid.Status,
		bid.AuctionID,
		model.AuctionStateOpen,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AwardAuction moves the auction to AWARDED, accepts the winning bid, and
// rejects every other pending bid, all in one transaction guarded by the
// auction version. Exactly one concurrent award can win the guard.
func (r *AuctionRepository) AwardAuction(ctx context.Context, auction model.ReverseAuction, expectedVersion int64, winningBidID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.writeAuctionGuarded(tx, auction, expectedVersion); err != nil {
			return err
		}
		res := tx.Exec(`
			UPDATE bids SET status = ? WHERE id = ? AND status = ?
		`, model.BidStatusAccepted, winningBidID, model.BidStatusPending)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return tx.Exec(`
			UPDATE bids SET status = ? WHERE auction_id = ? AND id <> ? AND status = ?
		`, model.BidStatusRejected, auction.ID, winningBidID, model.BidStatusPending).Error
	})
}

func (r *AuctionRepository) UpdateAuction(ctx context.Context, auction model.ReverseAuction, expectedVersion int64) error {
	return r.writeAuctionGuarded(r.db.WithContext(ctx), auction, expectedVersion)
}

func (r *AuctionRepository) writeAuctionGuarded(tx *gorm.DB, auction model.ReverseAuction, expectedVersion int64) error {
	res := tx.Exec(`
		UPDATE reverse_auctions
		SET
			state = ?,
			awarded_bid_id = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, auction.State, auction.AwardedBidID, auction.ID, expectedVersion)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *AuctionRepository) ListOverdueAuctions(ctx context.Context, cutoff time.Time) ([]model.ReverseAuction, error) {
	var auctions []model.ReverseAuction
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			commodity,
			quantity,
			quality_spec,
			deliver_by,
			state,
			awarded_bid_id,
			posted_by,
			created_at,
			version
		FROM reverse_auctions
		WHERE deliver_by < ?
			AND state = ?
		ORDER BY deliver_by ASC
	`, cutoff, model.AuctionStateOpen).Scan(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}
