package optimize

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/sim"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

// Candidate is one parameter set under evaluation.
type Candidate struct {
	ID     int             `json:"id"`
	Params strategy.Params `json:"params"`
}

// Report is the outcome of one candidate run. Failed candidates carry Err
// and rank below every successful one.
type Report struct {
	Candidate Candidate   `json:"candidate"`
	Score     float64     `json:"score"`
	Result    *sim.Result `json:"result,omitempty"`
	Err       error       `json:"-"`
}

// Driver fans candidate runs across a worker pool. Every run builds its own
// pipeline from a private config copy; candidates share only the read-only
// bar slice.
type Driver struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewDriver wraps the base configuration the candidates are derived from.
func NewDriver(cfg *config.Config, log zerolog.Logger) *Driver {
	return &Driver{cfg: cfg, log: log.With().Str("comp", "optimize").Logger()}
}

// Candidates expands the configured grid, or falls back to seeded random
// sampling when no grid is set.
func (d *Driver) Candidates() []Candidate {
	base := d.cfg.Strategy.Params
	params := ExpandGrid(base, d.cfg.Optimize.Grid)
	if len(params) == 0 {
		n := d.cfg.Optimize.Samples
		if n <= 0 {
			n = 20
		}
		params = SampleRandom(base, n, d.cfg.Optimize.Seed)
	}
	out := make([]Candidate, len(params))
	for i, p := range params {
		out[i] = Candidate{ID: i, Params: p}
	}
	return out
}

// Run evaluates every candidate over the same bars and returns reports
// ranked best first. A failed candidate does not abort the sweep; it is
// reported with its error and sorted last.
func (d *Driver) Run(ctx context.Context, bars []market.Bar) ([]Report, error) {
	objective, err := ObjectiveByName(d.cfg.Optimize.Objective)
	if err != nil {
		return nil, err
	}
	candidates := d.Candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to evaluate")
	}

	workers := d.cfg.Optimize.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan Candidate)
	reports := make([]Report, len(candidates))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				reports[c.ID] = d.evaluate(ctx, c, bars, objective)
			}
		}()
	}

feed:
	for _, c := range candidates {
		select {
		case jobs <- c:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if (reports[i].Err == nil) != (reports[j].Err == nil) {
			return reports[i].Err == nil
		}
		return reports[i].Score > reports[j].Score
	})
	return reports, nil
}

// evaluate runs one candidate in full isolation: private config copy, fresh
// simulator, fresh tracker.
func (d *Driver) evaluate(ctx context.Context, c Candidate, bars []market.Bar, objective Objective) Report {
	cfg := *d.cfg
	cfg.Strategy.Params = c.Params

	result, err := sim.NewBacktester(&cfg, d.log).Run(ctx, bars)
	if err != nil {
		d.log.Warn().Err(err).Int("candidate", c.ID).Msg("candidate run failed")
		return Report{Candidate: c, Score: math.Inf(-1), Err: err}
	}
	return Report{Candidate: c, Score: objective.Score(result.Summary), Result: result}
}
