package indicator

import "github.com/vitordhers/klapaucius/internal/market"

// Engine owns the registered indicators for one instrument pipeline. It is not
// safe for concurrent use; each pipeline (or backtest run) owns its own Engine.
type Engine struct {
	inds []Indicator
	byID map[string]int
}

// Handle identifies a registered indicator within an Engine.
type Handle int

// NewEngine creates an empty indicator engine.
func NewEngine() *Engine {
	return &Engine{byID: make(map[string]int)}
}

// Register adds an indicator. Registering the same ID twice returns the
// existing handle instead of computing the series twice.
func (e *Engine) Register(ind Indicator) Handle {
	if i, ok := e.byID[ind.ID()]; ok {
		return Handle(i)
	}
	e.inds = append(e.inds, ind)
	e.byID[ind.ID()] = len(e.inds) - 1
	return Handle(len(e.inds) - 1)
}

// Update folds one bar into every registered indicator and returns the
// resulting snapshot. This is the live path.
func (e *Engine) Update(bar market.Bar) Snapshot {
	snap := make(Snapshot, len(e.inds))
	for _, ind := range e.inds {
		snap[ind.ID()] = ind.Update(bar)
	}
	return snap
}

// Batch computes all registered indicators over a full historical sequence,
// one snapshot per bar. This is the backtest path; it must agree with
// repeated Update calls within floating-point tolerance.
func (e *Engine) Batch(bars []market.Bar) []Snapshot {
	out := make([]Snapshot, len(bars))
	for i := range out {
		out[i] = make(Snapshot, len(e.inds))
	}
	for _, ind := range e.inds {
		vals := ind.Batch(bars)
		for i, v := range vals {
			out[i][ind.ID()] = v
		}
	}
	return out
}

// Reset clears all incremental state, keeping registrations.
func (e *Engine) Reset() {
	for _, ind := range e.inds {
		ind.Reset()
	}
}
