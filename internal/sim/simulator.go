// Package sim replays historical bars through the execution adapter
// interface. Orders submitted while bar t is current can fill no earlier
// than bar t+1, so a strategy decision never trades on the bar it saw.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitordhers/klapaucius/internal/execution"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/metrics"
)

// ErrLookAhead means a bar arrived at or before the simulation clock for its
// instrument. It is fatal for the run: the bar sequence is corrupt.
var ErrLookAhead = errors.New("bar at or before simulation clock")

type simOrder struct {
	order execution.Order
	ch    chan execution.Fill
}

// Simulator implements execution.Adapter against replayed bars. Fills are
// delivered both on the per-order channel (adapter contract) and as the
// return value of Step, which backtest drivers apply synchronously for
// deterministic ordering.
type Simulator struct {
	slippageBps float64
	feeRate     float64

	mu     sync.Mutex
	clocks map[string]time.Time // last processed open time per instrument
	orders map[string]*simOrder
	queue  []string // submission order, for deterministic fills
}

// NewSimulator builds a simulator with the given slippage (basis points
// applied against the fill) and proportional fee rate.
func NewSimulator(slippageBps, feeRate float64) *Simulator {
	return &Simulator{
		slippageBps: slippageBps,
		feeRate:     feeRate,
		clocks:      make(map[string]time.Time),
		orders:      make(map[string]*simOrder),
	}
}

// Submit queues an order for fill evaluation against subsequent bars.
func (s *Simulator) Submit(_ context.Context, order execution.Order) (<-chan execution.Fill, error) {
	if order.Qty <= 0 {
		return nil, fmt.Errorf("order %s: quantity must be positive", order.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.orders[order.ID]; dup {
		return nil, fmt.Errorf("order %s: duplicate id", order.ID)
	}
	order.Status = execution.Pending
	so := &simOrder{order: order, ch: make(chan execution.Fill, 1)}
	s.orders[order.ID] = so
	s.queue = append(s.queue, order.ID)
	metrics.OrdersTotal.WithLabelValues(order.Instrument, string(order.Side)).Inc()
	return so.ch, nil
}

// Cancel removes a working order and closes its fill stream.
func (s *Simulator) Cancel(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	so := s.orders[orderID]
	if so == nil {
		return fmt.Errorf("unknown order %s", orderID)
	}
	so.order.Status = execution.Cancelled
	close(so.ch)
	s.removeLocked(orderID)
	return nil
}

// Step advances the simulation by one bar and returns the fills it produced,
// in order submission order. Only orders for the bar's instrument are
// evaluated. Bars must arrive strictly forward in time per instrument.
func (s *Simulator) Step(bar market.Bar) ([]execution.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.clocks[bar.Instrument]; ok && !bar.OpenTime.After(last) {
		return nil, fmt.Errorf("%s at %s: %w", bar.Instrument, bar.OpenTime, ErrLookAhead)
	}
	s.clocks[bar.Instrument] = bar.OpenTime

	var fills []execution.Fill
	for _, id := range append([]string(nil), s.queue...) {
		so := s.orders[id]
		if so == nil || so.order.Instrument != bar.Instrument {
			continue
		}
		price, ok := fillPrice(so.order, bar)
		if !ok {
			continue
		}
		price = s.slip(so.order.Side, price)
		fill := execution.Fill{
			OrderID:    so.order.ID,
			Instrument: so.order.Instrument,
			Side:       so.order.Side,
			Price:      price,
			Qty:        so.order.Qty,
			Fee:        price * so.order.Qty * s.feeRate,
			Ts:         bar.OpenTime,
		}
		so.order.Status = execution.Filled
		so.ch <- fill
		close(so.ch)
		s.removeLocked(id)
		fills = append(fills, fill)
	}
	return fills, nil
}

// Pending returns how many orders are still working.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Simulator) removeLocked(orderID string) {
	delete(s.orders, orderID)
	for i, id := range s.queue {
		if id == orderID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// fillPrice decides whether the bar executes the order and at what raw price.
// Market orders take the open. Limit orders fill at the open when it already
// satisfies the limit, otherwise at the limit when the bar range crosses it.
// Stop orders trigger when the range crosses the stop and fill no better
// than the stop.
func fillPrice(o execution.Order, bar market.Bar) (float64, bool) {
	if o.Market() {
		return bar.Open, true
	}
	if o.Limit > 0 {
		if o.Side == execution.Buy {
			if bar.Open <= o.Limit {
				return bar.Open, true
			}
			if bar.Low <= o.Limit {
				return o.Limit, true
			}
		} else {
			if bar.Open >= o.Limit {
				return bar.Open, true
			}
			if bar.High >= o.Limit {
				return o.Limit, true
			}
		}
		return 0, false
	}
	// stop order
	if o.Side == execution.Buy {
		if bar.Open >= o.Stop {
			return bar.Open, true
		}
		if bar.High >= o.Stop {
			return o.Stop, true
		}
	} else {
		if bar.Open <= o.Stop {
			return bar.Open, true
		}
		if bar.Low <= o.Stop {
			return o.Stop, true
		}
	}
	return 0, false
}

// slip worsens the raw price by the configured basis points.
func (s *Simulator) slip(side execution.Side, price float64) float64 {
	if s.slippageBps == 0 {
		return price
	}
	adj := s.slippageBps / 10000
	if side == execution.Buy {
		return price * (1 + adj)
	}
	return price * (1 - adj)
}
