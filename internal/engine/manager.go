// Package engine owns the position lifecycle. It turns strategy signals into
// sized orders, tracks each instrument through flat, entering, open, and
// exiting states, and closes positions when protective triggers fire.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/execution"
	"github.com/vitordhers/klapaucius/internal/metrics"
	"github.com/vitordhers/klapaucius/internal/perf"
	"github.com/vitordhers/klapaucius/internal/risk"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

const epsilon = 1e-9

// ErrExposureExceeded marks a signal downgraded to no-trade because the order
// notional would break the exposure cap. Callers treat it as a non-fatal
// outcome, not a failure.
var ErrExposureExceeded = errors.New("exposure limit exceeded")

// State is the per-instrument position lifecycle stage.
type State int

const (
	// StateFlat means no position and no working order.
	StateFlat State = iota
	// StateEntering means an opening order is working at the venue.
	StateEntering
	// StateOpen means a position is held with no working order.
	StateOpen
	// StateExiting means a closing order is working at the venue.
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "ENTERING"
	case StateOpen:
		return "OPEN"
	case StateExiting:
		return "EXITING"
	default:
		return "FLAT"
	}
}

// Position is the engine's view of one held instrument.
type Position struct {
	Instrument string
	Qty        float64 // signed: positive long, negative short
	AvgEntry   float64
	Leverage   float64
	StopPrice  float64
	TakePrice  float64
	OpenedAt   time.Time
	PeakReturn float64 // best leveraged return seen since entry
}

type book struct {
	state     State
	prior     State // stable state to restore when a working order dies
	pos       Position
	pending   *execution.Order
	remaining float64
	exit      bool // the pending order closes the position
	reopen    *sig.Signal
	lastMark  float64
}

// Manager serializes state transitions per instrument and is the single
// authority on position state. Fills enter through ApplyFill regardless of
// whether they come from a live venue or a simulator.
type Manager struct {
	cfg     config.Risk
	limits  risk.Limits
	adapter execution.Adapter
	tracker *perf.Tracker
	log     zerolog.Logger
	async   bool // consume fill streams on internal goroutines (live mode)

	recorder perf.FillRecorder

	mu         sync.Mutex
	books      map[string]*book
	downgrades int64
}

// NewManager wires the manager against an execution adapter and a performance
// tracker. With async true, fill streams returned by Submit are consumed on
// internal goroutines; with async false the caller pumps fills through
// ApplyFill and Resolve itself, which keeps backtests deterministic.
func NewManager(cfg config.Risk, adapter execution.Adapter, tracker *perf.Tracker, log zerolog.Logger, async bool) *Manager {
	return &Manager{
		cfg: cfg,
		limits: risk.Limits{
			RiskPerTrade: cfg.RiskPerTrade,
			MaxLeverage:  cfg.MaxLeverage,
			MaxExposure:  cfg.MaxExposure,
		},
		adapter: adapter,
		tracker: tracker,
		log:     log.With().Str("comp", "engine").Logger(),
		async:   async,
		books:   make(map[string]*book),
	}
}

// SetRecorder attaches a fill journal. Must be called before the first fill.
func (m *Manager) SetRecorder(r perf.FillRecorder) { m.recorder = r }

func (m *Manager) bookLocked(instrument string) *book {
	b := m.books[instrument]
	if b == nil {
		b = &book{pos: Position{Instrument: instrument}}
		m.books[instrument] = b
	}
	return b
}

// OnSignal reconciles the strategy's target direction against the current
// state. While an order is working, the signal is skipped; the strategy emits
// its target again on the next bar, so nothing is lost.
func (m *Manager) OnSignal(ctx context.Context, s sig.Signal, refPrice float64) error {
	if refPrice <= 0 {
		return fmt.Errorf("signal %s: invalid reference price %v", s.Instrument, refPrice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bookLocked(s.Instrument)
	switch b.state {
	case StateEntering, StateExiting:
		return nil
	case StateFlat:
		if s.Direction == sig.Flat {
			return nil
		}
		return m.enterLocked(ctx, b, s, refPrice)
	case StateOpen:
		current := directionOf(b.pos.Qty)
		if s.Direction == current {
			return nil
		}
		if s.Direction != sig.Flat && m.cfg.RevertOpposite {
			flip := s
			b.reopen = &flip
		}
		return m.exitLocked(ctx, b, refPrice, s.Ts, "signal")
	}
	return nil
}

// enterLocked sizes and submits an opening order, or downgrades the signal to
// no-trade when sizing or exposure limits say so.
func (m *Manager) enterLocked(ctx context.Context, b *book, s sig.Signal, refPrice float64) error {
	equity := m.tracker.Snapshot().Equity

	stop := s.Stop
	if stop == 0 && m.cfg.StopLossPct > 0 {
		if s.Direction == sig.Long {
			stop = refPrice * (1 - m.cfg.StopLossPct)
		} else {
			stop = refPrice * (1 + m.cfg.StopLossPct)
		}
	}
	take := s.Target
	if take == 0 && m.cfg.TakeProfitPct > 0 {
		if s.Direction == sig.Long {
			take = refPrice * (1 + m.cfg.TakeProfitPct)
		} else {
			take = refPrice * (1 - m.cfg.TakeProfitPct)
		}
	}

	qty := m.limits.Size(equity, refPrice, stop)
	if qty <= 0 {
		m.downgrades++
		metrics.RiskRejectionsTotal.WithLabelValues(s.Instrument, "size").Inc()
		m.log.Warn().Str("sym", s.Instrument).Float64("equity", equity).Msg("signal downgraded: sized to zero")
		return nil
	}
	notional := qty * refPrice
	if !m.limits.Allow(m.openNotionalLocked(), notional) {
		m.downgrades++
		metrics.RiskRejectionsTotal.WithLabelValues(s.Instrument, "exposure").Inc()
		m.log.Warn().Str("sym", s.Instrument).Float64("notional", notional).Msg("signal downgraded: exposure limit")
		return fmt.Errorf("%s: %w", s.Instrument, ErrExposureExceeded)
	}

	leverage := 1.0
	if equity > 0 && notional > equity {
		leverage = notional / equity
	}

	side := execution.Buy
	if s.Direction == sig.Short {
		side = execution.Sell
	}
	order := execution.Order{
		ID:          execution.NewOrderID(),
		Instrument:  s.Instrument,
		Side:        side,
		Qty:         qty,
		Ref:         refPrice,
		Leverage:    leverage,
		StopLoss:    stop,
		TakeProfit:  take,
		Status:      execution.Pending,
		SubmittedAt: s.Ts,
	}

	b.prior = b.state
	b.state = StateEntering
	b.pending = &order
	b.remaining = qty
	b.exit = false
	b.pos.StopPrice = stop
	b.pos.TakePrice = take
	b.pos.Leverage = leverage
	return m.submitLocked(ctx, b, order)
}

// exitLocked submits a closing order for the full open quantity.
func (m *Manager) exitLocked(ctx context.Context, b *book, refPrice float64, ts time.Time, reason string) error {
	qty := math.Abs(b.pos.Qty)
	if qty <= epsilon {
		b.state = StateFlat
		return nil
	}
	side := execution.Sell
	if b.pos.Qty < 0 {
		side = execution.Buy
	}
	order := execution.Order{
		ID:          execution.NewOrderID(),
		Instrument:  b.pos.Instrument,
		Side:        side,
		Qty:         qty,
		Ref:         refPrice,
		Status:      execution.Pending,
		SubmittedAt: ts,
	}
	m.log.Info().Str("sym", b.pos.Instrument).Str("reason", reason).Float64("qty", qty).Msg("closing position")

	b.prior = b.state
	b.state = StateExiting
	b.pending = &order
	b.remaining = qty
	b.exit = true
	return m.submitLocked(ctx, b, order)
}

func (m *Manager) submitLocked(ctx context.Context, b *book, order execution.Order) error {
	ch, err := m.adapter.Submit(ctx, order)
	if err != nil {
		b.state = b.prior
		b.pending = nil
		b.remaining = 0
		if b.exit {
			b.exit = false
			b.reopen = nil
		}
		return fmt.Errorf("submit %s: %w", order.ID, err)
	}
	if m.async && ch != nil {
		go m.consume(order.ID, ch)
	}
	return nil
}

// consume forwards a live fill stream into ApplyFill and settles the order
// once the venue closes it.
func (m *Manager) consume(orderID string, ch <-chan execution.Fill) {
	for f := range ch {
		m.ApplyFill(context.Background(), f)
	}
	m.Resolve(orderID)
}

// ApplyFill is the single entry point for execution reports. It updates the
// tracker, the journal, and the book, and completes pending state transitions
// once the working order is fully filled.
func (m *Manager) ApplyFill(ctx context.Context, f execution.Fill) {
	m.tracker.OnFill(f)
	if m.recorder != nil {
		m.recorder.Record(f)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bookLocked(f.Instrument)
	b.pos.Qty, b.pos.AvgEntry = m.tracker.Position(f.Instrument)
	b.lastMark = f.Price

	if b.pending == nil || b.pending.ID != f.OrderID {
		m.log.Warn().Str("order", f.OrderID).Msg("fill for unknown order")
		return
	}
	b.remaining -= f.Qty
	if b.remaining > epsilon {
		b.pending.Status = execution.PartiallyFilled
		return
	}

	b.pending = nil
	b.remaining = 0
	if b.exit {
		b.exit = false
		if math.Abs(b.pos.Qty) <= epsilon {
			m.flattenLocked(b)
			if b.reopen != nil {
				flip := *b.reopen
				b.reopen = nil
				if err := m.enterLocked(ctx, b, flip, f.Price); err != nil && !errors.Is(err, ErrExposureExceeded) {
					m.log.Error().Err(err).Str("sym", f.Instrument).Msg("revert entry failed")
				}
			}
		} else {
			b.state = StateOpen
		}
		return
	}
	b.state = StateOpen
	b.pos.OpenedAt = f.Ts
	b.pos.PeakReturn = 0
}

// Resolve settles an order whose stream ended without a full fill: cancelled
// or rejected remainder. A partially filled entry keeps the filled portion as
// an open position; only the remainder dies with the order.
func (m *Manager) Resolve(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.books {
		if b.pending == nil || b.pending.ID != orderID {
			continue
		}
		if b.remaining > epsilon {
			m.log.Warn().
				Str("order", orderID).
				Float64("unfilled", b.remaining).
				Msg("order terminated with remainder")
		}
		b.pending = nil
		b.remaining = 0
		b.exit = false
		if math.Abs(b.pos.Qty) > epsilon {
			b.state = StateOpen
		} else {
			m.flattenLocked(b)
		}
		return
	}
}

func (m *Manager) flattenLocked(b *book) {
	instr := b.pos.Instrument
	b.state = StateFlat
	b.pos = Position{Instrument: instr}
}

// OnMark feeds a mark price into the tracker and fires protective exits:
// bankruptcy, stop loss, take profit, and trailing stop, in that order of
// severity. Only open positions are checked.
func (m *Manager) OnMark(ctx context.Context, instrument string, price float64, ts time.Time) error {
	if price <= 0 {
		return nil
	}
	m.tracker.OnMark(instrument, price, ts)

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.books[instrument]
	if b == nil {
		return nil
	}
	b.lastMark = price
	if b.state != StateOpen || b.pos.AvgEntry <= 0 {
		return nil
	}

	dir := signOf(b.pos.Qty)
	ret := (price - b.pos.AvgEntry) / b.pos.AvgEntry * dir
	if b.pos.Leverage > 1 {
		ret *= b.pos.Leverage
	}
	if ret > b.pos.PeakReturn {
		b.pos.PeakReturn = ret
	}

	if reason := m.triggerLocked(b, price, dir, ret); reason != "" {
		b.reopen = nil
		return m.exitLocked(ctx, b, price, ts, reason)
	}
	return nil
}

// triggerLocked returns the name of the first protective trigger the mark
// price crossed, or empty when the position stays open.
func (m *Manager) triggerLocked(b *book, price, dir, ret float64) string {
	if lev := b.pos.Leverage; lev > 1 {
		var bankruptcy float64
		if dir > 0 {
			bankruptcy = b.pos.AvgEntry * (lev - 1) / lev
		} else {
			bankruptcy = b.pos.AvgEntry * (lev + 1) / lev
		}
		if (dir > 0 && price <= bankruptcy) || (dir < 0 && price >= bankruptcy) {
			return "bankruptcy"
		}
	}
	if sp := b.pos.StopPrice; sp > 0 {
		if (dir > 0 && price <= sp) || (dir < 0 && price >= sp) {
			return "stop_loss"
		}
	}
	if tp := b.pos.TakePrice; tp > 0 {
		if (dir > 0 && price >= tp) || (dir < 0 && price <= tp) {
			return "take_profit"
		}
	}
	if m.cfg.TrailingStopPct > 0 && b.pos.PeakReturn > 0 && b.pos.PeakReturn >= m.cfg.TrailingStartPct {
		if floor := b.pos.PeakReturn * m.cfg.TrailingStopPct; ret <= floor {
			return "trailing_stop"
		}
	}
	return ""
}

// CancelPending cancels every working order and restores each book to its
// stable state. Used during shutdown so no order is left dangling.
func (m *Manager) CancelPending(ctx context.Context) error {
	m.mu.Lock()
	var ids []string
	for _, b := range m.books {
		if b.pending != nil {
			ids = append(ids, b.pending.ID)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.adapter.Cancel(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
		m.Resolve(id)
	}
	return firstErr
}

// State returns the lifecycle stage for an instrument.
func (m *Manager) State(instrument string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.books[instrument]; b != nil {
		return b.state
	}
	return StateFlat
}

// Position returns a copy of the engine's position view for an instrument.
func (m *Manager) Position(instrument string) Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.books[instrument]; b != nil {
		return b.pos
	}
	return Position{Instrument: instrument}
}

// Positions returns every non-flat position.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.books))
	for _, b := range m.books {
		if math.Abs(b.pos.Qty) > epsilon {
			out = append(out, b.pos)
		}
	}
	return out
}

// Downgrades returns how many signals were refused by sizing or exposure.
func (m *Manager) Downgrades() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downgrades
}

// openNotionalLocked sums held positions plus the unfilled remainder of
// working entry orders, so exposure committed but not yet filled still
// counts against the cap. Working exits are excluded: their position is
// already counted and they only reduce it.
func (m *Manager) openNotionalLocked() float64 {
	var total float64
	for _, b := range m.books {
		if b.pending != nil && !b.exit {
			total += b.remaining * b.pending.Ref
		}
		if math.Abs(b.pos.Qty) <= epsilon {
			continue
		}
		mark := b.lastMark
		if mark <= 0 {
			mark = b.pos.AvgEntry
		}
		total += math.Abs(b.pos.Qty) * mark
	}
	return total
}

func directionOf(qty float64) sig.Direction {
	switch {
	case qty > epsilon:
		return sig.Long
	case qty < -epsilon:
		return sig.Short
	default:
		return sig.Flat
	}
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
