// Binary live runs the trading loop against a streaming feed with the
// logging execution stub. Orders are sized and tracked for real; nothing is
// sent to a venue.
package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/engine"
	"github.com/vitordhers/klapaucius/internal/exchange"
	"github.com/vitordhers/klapaucius/internal/execution"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/metrics"
	"github.com/vitordhers/klapaucius/internal/perf"
	"github.com/vitordhers/klapaucius/internal/util"
)

const shutdownTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load()

	path := "config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	granularity, err := market.ParseGranularity(cfg.Data.Granularity)
	if err != nil {
		log.Fatal().Err(err).Msg("granularity")
	}

	executor := execution.NewLogExecutor(log, 5, cfg.Sim.FeeRate)
	rc, err := engine.NewRunContext(cfg, log, executor, true)
	if err != nil {
		log.Fatal().Err(err).Msg("build run")
	}

	journal, err := perf.NewJSONLRecorder("fills.jsonl")
	if err != nil {
		log.Fatal().Err(err).Msg("open fill journal")
	}
	defer journal.Close()
	rc.Manager.SetRecorder(journal)

	queueSize := cfg.Data.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	trades := make(chan market.Trade, queueSize)

	feed := exchange.NewFeed(cfg.Data.Provider, cfg.Data.Symbols, log)
	go func() {
		if err := feed.Run(ctx, trades); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	builders := make(map[string]*market.BarBuilder, len(cfg.Data.Symbols))
	for _, symbol := range cfg.Data.Symbols {
		builders[symbol] = market.NewBarBuilder(symbol, granularity)
	}

	log.Info().Strs("symbols", cfg.Data.Symbols).Str("granularity", string(granularity)).Msg("live engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := rc.Shutdown(drainCtx); err != nil {
				log.Warn().Err(err).Msg("cancel working orders")
			}
			drainCancel()
			snap := rc.Tracker.Snapshot()
			log.Info().
				Float64("equity", snap.Equity).
				Float64("realized", snap.Realized).
				Int("trades", snap.Trades).
				Msg("final account state")
			return
		case trade := <-trades:
			builder := builders[trade.Instrument]
			if builder == nil {
				continue
			}
			bar, done := builder.Add(trade)
			if !done {
				continue
			}
			if _, err := rc.OnBar(ctx, bar); err != nil {
				if errors.Is(err, market.ErrStaleBar) {
					log.Warn().Str("sym", bar.Instrument).Time("open", bar.OpenTime).Msg("stale bar dropped")
					continue
				}
				log.Error().Err(err).Msg("bar processing failed")
			}
		}
	}
}
