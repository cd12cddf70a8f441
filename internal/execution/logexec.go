package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vitordhers/klapaucius/internal/metrics"
)

// LogExecutor is the live-side adapter stub: it rate-limits, logs, and
// acknowledges orders with an immediate synthetic full fill at the order's
// reference price. Real venue placement belongs to an exchange connector
// behind the same Adapter interface.
type LogExecutor struct {
	log     zerolog.Logger
	limiter *rate.Limiter
	feeRate float64

	mu   sync.Mutex
	open map[string]Order
}

// NewLogExecutor wraps a zerolog logger and a submissions-per-second budget.
func NewLogExecutor(log zerolog.Logger, perSecond float64, feeRate float64) *LogExecutor {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &LogExecutor{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		feeRate: feeRate,
		open:    make(map[string]Order),
	}
}

// Submit logs the order and emits one synthetic fill. Market orders fill at
// the limit-or-stop reference when present; an order with no price reference
// is rejected, since the stub has no book to price it against.
func (e *LogExecutor) Submit(ctx context.Context, order Order) (<-chan Fill, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if order.Qty <= 0 {
		return nil, fmt.Errorf("order %s: quantity must be positive", order.ID)
	}
	price := order.Limit
	if price == 0 {
		price = order.Ref
	}
	if price <= 0 {
		return nil, fmt.Errorf("order %s: no reference price", order.ID)
	}

	metrics.OrdersTotal.WithLabelValues(order.Instrument, string(order.Side)).Inc()
	e.log.Info().
		Str("id", order.ID).
		Str("sym", order.Instrument).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Float64("px", price).
		Msg("submit order (paper)")

	e.mu.Lock()
	e.open[order.ID] = order
	e.mu.Unlock()

	out := make(chan Fill, 1)
	out <- Fill{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Price:      price,
		Qty:        order.Qty,
		Fee:        order.Qty * price * e.feeRate,
		Ts:         order.SubmittedAt,
	}
	close(out)

	e.mu.Lock()
	delete(e.open, order.ID)
	e.mu.Unlock()
	return out, nil
}

// Cancel drops a tracked order. Fills already emitted stand.
func (e *LogExecutor) Cancel(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.open[orderID]; !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	delete(e.open, orderID)
	e.log.Info().Str("id", orderID).Msg("cancel order")
	return nil
}
