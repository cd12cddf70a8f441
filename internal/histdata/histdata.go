// Package histdata loads historical bars for the offline binaries, from the
// configured sqlite store or as a deterministic synthetic series.
package histdata

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/store"
)

// Load returns the bars a run should replay. With a history path configured
// it opens the store and loads every configured symbol; the returned store
// stays open for result persistence and is nil in the synthetic case. The
// caller closes it.
func Load(ctx context.Context, cfg *config.Config) ([]market.Bar, *store.Store, error) {
	if cfg.Data.HistoryPath == "" {
		return Synthetic(cfg.Data.Symbols, 500), nil, nil
	}
	db, err := store.Open(cfg.Data.HistoryPath)
	if err != nil {
		return nil, nil, err
	}
	var all []market.Bar
	for _, symbol := range cfg.Data.Symbols {
		bars, err := db.LoadBars(ctx, symbol, time.Time{}, time.Time{})
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		all = append(all, bars...)
	}
	sortBars(all)
	return all, db, nil
}

// Synthetic builds a deterministic oscillating series with a mild drift for
// each symbol, so the offline binaries work with no store configured.
func Synthetic(symbols []string, n int) []market.Bar {
	start := time.Now().UTC().Truncate(time.Minute).Add(-time.Duration(n) * time.Minute)
	var bars []market.Bar
	for _, symbol := range symbols {
		open := 100.0
		for i := 0; i < n; i++ {
			c := 100 + 8*math.Sin(float64(i)/12) + float64(i)*0.02
			bars = append(bars, market.Bar{
				Instrument: symbol,
				OpenTime:   start.Add(time.Duration(i) * time.Minute),
				Open:       open,
				High:       math.Max(open, c) * 1.001,
				Low:        math.Min(open, c) * 0.999,
				Close:      c,
				Volume:     10,
			})
			open = c
		}
	}
	sortBars(bars)
	return bars
}

func sortBars(bars []market.Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
}
