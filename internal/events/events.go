package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys for decision events on the decisions exchange.
const (
	RoutingKeyPoolThresholdReached = "pool.threshold_reached"
	RoutingKeyAuctionAwarded       = "auction.awarded"
)

// Decision events are delivered at least once; consumers de-duplicate by
// EventID.

type PoolThresholdReached struct {
	EventID         uuid.UUID   `json:"event_id"`
	PoolID          uuid.UUID   `json:"pool_id"`
	CurrentQuantity float64     `json:"current_quantity"`
	Contributors    []uuid.UUID `json:"contributors"`
	CrossedAt       time.Time   `json:"crossed_at"`
}

type AuctionAwarded struct {
	EventID      uuid.UUID `json:"event_id"`
	AuctionID    uuid.UUID `json:"auction_id"`
	WinningBidID uuid.UUID `json:"winning_bid_id"`
	AwardedAt    time.Time `json:"awarded_at"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
