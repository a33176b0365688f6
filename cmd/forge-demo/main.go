package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beamline/forge"
	"github.com/beamline/forge/internal/util"
	"github.com/beamline/forge/playground"
)

func main() {
	// spawned copies of this binary become workers here and never return
	forge.RunIfWorker()

	ctx, cancel := util.ContextWithSignal(context.Background(), os.Interrupt)
	defer cancel()

	fetch := playground.NewFetcher()
	count := playground.NewCounter()

	b := forge.NewBuild("animal-census", fetch, count)
	release := b.Resolver().WithVars(map[string]interface{}{
		"build_id": time.Now().Format("20060102T150405"),
	})
	defer release()

	res, err := b.RunSync(ctx)
	if err != nil {
		log.Fatal().
			Err(err).
			Msg("build failed")
	}

	log.Info().
		Interface("summary", count.Summary()).
		Interface("metrics", res.Metrics()).
		Msg("done!")
}
