package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/transfer"
	"github.com/tanq16/batchfetch/internal/utils"
)

// Registry maps URL schemes to the source that serves them.
type Registry map[string]utils.Source

func (r Registry) SourceFor(rawURL string) (utils.Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}
	source, ok := r[strings.ToLower(parsed.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w %q in %s", utils.ErrUnsupportedScheme, parsed.Scheme, rawURL)
	}
	return source, nil
}

// Runner fans a batch of URLs out into concurrent transfers.
type Runner struct {
	Sources  Registry
	Reporter utils.Reporter
	// MaxParallel caps concurrent transfers within a batch; 0 means no cap.
	MaxParallel int
}

// BatchError carries every per-target failure of one batch.
type BatchError struct {
	BatchID string
	Total   int
	Errs    []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("batch %s completed with %d of %d failed: %s", e.BatchID, len(e.Errs), e.Total, strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// RunBatch runs one pipeline per URL and returns once every pipeline is
// terminal. A failure never cancels siblings; all failures are returned
// together afterwards.
func (r *Runner) RunBatch(ctx context.Context, batchID string, urls []string, dir string) error {
	logger := log.With().Str("op", "scheduler").Str("batch", batchID).Logger()
	logger.Debug().Int("targets", len(urls)).Int("maxParallel", r.MaxParallel).Msg("Starting batch")
	warnDuplicateTargets(batchID, urls, dir)

	var sem chan struct{}
	if r.MaxParallel > 0 {
		sem = make(chan struct{}, r.MaxParallel)
	}
	errs := make([]error, len(urls))
	var wg sync.WaitGroup
	for i, link := range urls {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			errs[i] = r.runOne(ctx, batchID, link, dir)
		}(i, link)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		logger.Error().Int("failed", len(failed)).Msg("Batch finished with errors")
		return &BatchError{BatchID: batchID, Total: len(urls), Errs: failed}
	}
	logger.Debug().Msg("Batch finished")
	return nil
}

func (r *Runner) runOne(ctx context.Context, batchID, link, dir string) error {
	source, err := r.Sources.SourceFor(link)
	if err != nil {
		r.reportError(batchID, link, dir, err)
		return err
	}
	decider := &transfer.Decider{BatchID: batchID, Source: source, Reporter: r.Reporter}
	if _, err := decider.Run(ctx, link, dir); err != nil {
		log.Error().Str("op", "scheduler").Str("url", link).Err(err).Msg("Transfer failed")
		r.reportError(batchID, link, dir, err)
		return err
	}
	return nil
}

func (r *Runner) reportError(batchID, link, dir string, err error) {
	if r.Reporter == nil {
		return
	}
	target, tErr := utils.NewTarget(link, dir)
	if tErr != nil {
		target = utils.Target{URL: link}
	}
	r.Reporter.Report(utils.Event{BatchID: batchID, Target: target, Kind: utils.EventError, Err: err})
}

// PlanResult is the dry-run outcome for one URL.
type PlanResult struct {
	Target   utils.Target
	Decision utils.Decision
	Err      error
}

// Plan computes every decision of a batch without transferring content.
func (r *Runner) Plan(ctx context.Context, urls []string, dir string) []PlanResult {
	results := make([]PlanResult, len(urls))
	var wg sync.WaitGroup
	for i, link := range urls {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			source, err := r.Sources.SourceFor(link)
			if err != nil {
				results[i] = PlanResult{Target: utils.Target{URL: link}, Err: err}
				return
			}
			decider := &transfer.Decider{Source: source}
			target, decision, err := decider.Plan(ctx, link, dir)
			results[i] = PlanResult{Target: target, Decision: decision, Err: err}
		}(i, link)
	}
	wg.Wait()
	return results
}

// Two URLs resolving to one destination path race on the same file. This is
// not resolved here, only reported.
func warnDuplicateTargets(batchID string, urls []string, dir string) {
	seen := make(map[string]string, len(urls))
	for _, link := range urls {
		target, err := utils.NewTarget(link, dir)
		if err != nil {
			continue
		}
		if prev, ok := seen[target.DestinationPath]; ok {
			log.Warn().Str("op", "scheduler").Str("batch", batchID).Str("path", target.DestinationPath).
				Str("first", prev).Str("second", link).Msg("Two URLs share a destination path")
			continue
		}
		seen[target.DestinationPath] = link
	}
}
