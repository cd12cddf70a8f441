// Binary backtest replays historical bars through the full pipeline and
// prints the run summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/joho/godotenv"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/histdata"
	"github.com/vitordhers/klapaucius/internal/sim"
	"github.com/vitordhers/klapaucius/internal/util"
)

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

	ctx := context.Background()
	bars, db, err := histdata.Load(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}
	if db != nil {
		defer db.Close()
	}
	log.Info().Int("bars", len(bars)).Msg("bars loaded")

	result, err := sim.NewBacktester(cfg, log).Run(ctx, bars)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	if db != nil {
		id, err := db.SaveResult(ctx, cfg.Strategy.Mode, cfg.Strategy.Params, result.Summary)
		if err != nil {
			log.Warn().Err(err).Msg("persist result")
		} else {
			log.Info().Str("id", id).Msg("result saved")
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
}
