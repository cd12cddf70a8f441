// Package execution defines the order and fill types plus the adapter
// boundary between the engine and a venue (live or simulated).
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the closing side for this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Status tracks an order through its lifecycle. Transitions are monotone:
// a terminal status (Filled, Cancelled, Rejected) never reverts.
type Status string

const (
	Pending         Status = "PENDING"
	PartiallyFilled Status = "PARTIALLY_FILLED"
	Filled          Status = "FILLED"
	Cancelled       Status = "CANCELLED"
	Rejected        Status = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Order is a placement request. Limit == 0 means market; Stop != 0 makes it a
// stop order triggered when price crosses Stop.
type Order struct {
	ID          string
	Instrument  string
	Side        Side
	Qty         float64
	Ref         float64 // last traded price when the order was created; advisory
	Limit       float64
	Stop        float64
	Leverage    float64
	StopLoss    float64
	TakeProfit  float64
	Status      Status
	SubmittedAt time.Time
}

// NewOrderID returns a fresh order identifier.
func NewOrderID() string { return uuid.NewString() }

// Market reports whether the order executes at the prevailing price.
func (o Order) Market() bool { return o.Limit == 0 && o.Stop == 0 }

// Fill confirms that part of an order executed. Fills are immutable events;
// they drive both position updates and performance accounting.
type Fill struct {
	OrderID    string
	Instrument string
	Side       Side
	Price      float64
	Qty        float64
	Fee        float64
	Ts         time.Time
}

// SignedQty returns the position delta this fill applies.
func (f Fill) SignedQty() float64 { return f.Side.Sign() * f.Qty }

// Adapter submits orders to a venue. Submit returns a stream carrying zero or
// more fills; the channel closes once the order reaches a terminal status.
// Rejection at submission time is returned as an error and the order is never
// live.
type Adapter interface {
	Submit(ctx context.Context, order Order) (<-chan Fill, error)
	Cancel(ctx context.Context, orderID string) error
}
