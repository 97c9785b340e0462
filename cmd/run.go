package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/config"
	fetchhttp "github.com/tanq16/batchfetch/internal/downloaders/http"
	fetchs3 "github.com/tanq16/batchfetch/internal/downloaders/s3"
	"github.com/tanq16/batchfetch/internal/output"
	"github.com/tanq16/batchfetch/internal/scheduler"
	"github.com/tanq16/batchfetch/internal/utils"
)

func newRegistry(cfg *config.Config) scheduler.Registry {
	httpSource := fetchhttp.NewSource(utils.NewFetchHTTPClient(cfg.HTTPClientConfig()))
	return scheduler.Registry{
		"http":  httpSource,
		"https": httpSource,
		"s3":    fetchs3.NewSource(cfg.S3Profile, cfg.S3Endpoint),
	}
}

// runBatches runs the URLs in consecutive batches and stops at the first
// batch that reports a failure.
func runBatches(ctx context.Context, cfg *config.Config, urls []string) error {
	runID := uuid.NewString()
	logger := log.With().Str("op", "cmd/run").Str("run", runID).Logger()
	batches := utils.SplitBatches(urls, cfg.BatchSize)
	logger.Debug().Int("urls", len(urls)).Int("batches", len(batches)).Str("output", cfg.Output).Msg("Starting run")

	runner := &scheduler.Runner{Sources: newRegistry(cfg), MaxParallel: cfg.MaxParallel}
	live := !cfg.Plain && output.IsInteractive()
	for i, batch := range batches {
		batchID := strconv.Itoa(i + 1)
		output.PrintHeader(fmt.Sprintf("Batch %s - %s", batchID, time.Now().Format(time.DateTime)))
		var err error
		if live {
			manager := output.NewManager()
			runner.Reporter = manager
			manager.StartDisplay()
			err = runner.RunBatch(ctx, batchID, batch, cfg.Output)
			manager.StopDisplay()
		} else {
			runner.Reporter = output.NewPrinter(os.Stdout)
			err = runner.RunBatch(ctx, batchID, batch, cfg.Output)
		}
		if err != nil {
			logger.Error().Err(err).Str("batch", batchID).Msg("Batch failed")
			if remaining := len(batches) - i - 1; remaining > 0 {
				output.PrintWarning(fmt.Sprintf("Not starting %d remaining batch(es)", remaining))
			}
			return err
		}
	}
	return nil
}
