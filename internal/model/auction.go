package model

import (
	"time"

	"github.com/google/uuid"
)

type AuctionState string

const (
	AuctionStateOpen      AuctionState = "OPEN"
	AuctionStateAwarded   AuctionState = "AWARDED"
	AuctionStateCancelled AuctionState = "CANCELLED"
	AuctionStateExpired   AuctionState = "EXPIRED"
)

func (s AuctionState) Terminal() bool {
	return s == AuctionStateAwarded || s == AuctionStateCancelled || s == AuctionStateExpired
}

type BidStatus string

const (
	BidStatusPending  BidStatus = "PENDING"
	BidStatusAccepted BidStatus = "ACCEPTED"
	BidStatusRejected BidStatus = "REJECTED"
)

// ReverseAuction is a posted bulk demand resolved by a one-time award: at most
// one bid ever reaches ACCEPTED, and the instant one does the auction is
// AWARDED and every sibling bid is REJECTED.
type ReverseAuction struct {
	ID           uuid.UUID
	Commodity    string
	Quantity     float64
	QualitySpec  string
	DeliverBy    time.Time
	State        AuctionState
	AwardedBidID *uuid.UUID
	PostedBy     uuid.UUID
	CreatedAt    time.Time
	Version      int64
}

type Bid struct {
	ID           uuid.UUID
	AuctionID    uuid.UUID
	BidderID     uuid.UUID
	Price        float64
	QualityOffer string
	SubmittedAt  time.Time
	Status       BidStatus
}
