// Binary optimize sweeps strategy parameters over historical bars and prints
// the candidates ranked by the configured objective.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/histdata"
	"github.com/vitordhers/klapaucius/internal/optimize"
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
		db.Close()
	}

	driver := optimize.NewDriver(cfg, log)
	log.Info().Int("candidates", len(driver.Candidates())).Int("bars", len(bars)).Msg("sweep starting")

	reports, err := driver.Run(ctx, bars)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep failed")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "rank\tid\tfast\tslow\twindow\tscore\tequity\ttrades\terr")
	for rank, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t\t\t\t%v\n",
				rank+1, r.Candidate.ID, r.Candidate.Params.FastSpan,
				r.Candidate.Params.SlowSpan, r.Candidate.Params.MAWindow, r.Err)
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.4f\t%.2f\t%d\t\n",
			rank+1, r.Candidate.ID, r.Candidate.Params.FastSpan,
			r.Candidate.Params.SlowSpan, r.Candidate.Params.MAWindow,
			r.Score, r.Result.Summary.Equity, r.Result.Summary.Trades)
	}
	w.Flush()
}
