package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"imagedex/fingerprint"
	"imagedex/index"
	"imagedex/raster"
	"imagedex/similarity"
)

// PrefilterMargin is subtracted from the requested threshold when turning it
// into a hash-similarity cutoff. Hash similarity is a coarse proxy for the
// structural score, so the prefilter keeps a band of weaker hash matches that
// verification may still accept.
const PrefilterMargin = 0.25

// Match is one indexed image whose verified similarity reached the threshold.
type Match struct {
	index.Record
	Score float64
}

// QueryDecodeError reports that the query image itself could not be decoded.
// It is fatal: no candidate comparison is possible without the query raster.
type QueryDecodeError struct {
	Path string
	Err  error
}

func (e *QueryDecodeError) Error() string {
	return fmt.Sprintf("decoding query image %s: %v", e.Path, e.Err)
}

func (e *QueryDecodeError) Unwrap() error { return e.Err }

// Options configures a similarity search.
type Options struct {
	// Query is the path of the image to search for.
	Query string
	// Threshold is the minimum verified similarity score, in [0, 1].
	// Values above 1 are legal and simply match nothing.
	Threshold float64
	// Prefix restricts candidates to one source prefix when non-empty.
	Prefix string
	// Store holds the candidate records.
	Store  *index.Store
	Logger *slog.Logger
	// Workers bounds concurrent verification. Zero picks a default from
	// the CPU count.
	Workers int
}

// Run fingerprints the query image, prefilters the index by hash distance and
// verifies the survivors with a structural comparison. Results are sorted by
// score descending, ties broken by path ascending. Candidates whose files
// have disappeared or whose hashes predate the current scheme are skipped.
func Run(ctx context.Context, opts Options) ([]Match, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("search: no store configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}

	query, err := raster.Normalize(opts.Query)
	if err != nil {
		return nil, &QueryDecodeError{Path: opts.Query, Err: err}
	}
	_, queryHash, err := fingerprint.Compute(query)
	if err != nil {
		return nil, &QueryDecodeError{Path: opts.Query, Err: err}
	}

	cutoff := opts.Threshold - PrefilterMargin
	var candidates []index.Record
	for rec, err := range opts.Store.Candidates(ctx, opts.Prefix) {
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if rec.HashVersion != fingerprint.SchemeVersion {
			logger.Debug("skipping stale hash", "path", rec.Path, "version", rec.HashVersion)
			continue
		}
		dist, err := fingerprint.Distance(queryHash, rec.PerceptualHash)
		if err != nil {
			logger.Warn("unreadable stored hash", "path", rec.Path, "error", err)
			continue
		}
		if fingerprint.Similarity(dist) >= cutoff {
			candidates = append(candidates, rec)
		}
	}
	logger.Info("prefilter done", "query", opts.Query, "candidates", len(candidates))

	matches := verify(ctx, logger, query, candidates, opts.Threshold, workers)

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})
	logger.Info("search finished", "matches", len(matches))
	return matches, nil
}

// verify re-decodes every candidate and scores it against the shared query
// raster, keeping those at or above the threshold. The query raster is only
// read, so all workers share it.
func verify(ctx context.Context, logger *slog.Logger, query *raster.Raster, candidates []index.Record, threshold float64, workers int) []Match {
	jobs := make(chan index.Record)
	results := make(chan Match)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if _, err := os.Stat(rec.Path); err != nil {
					logger.Debug("candidate missing on disk", "path", rec.Path)
					continue
				}
				cand, err := raster.Normalize(rec.Path)
				if err != nil {
					logger.Warn("candidate failed to decode", "path", rec.Path, "error", err)
					continue
				}
				score, err := similarity.Score(query, cand)
				if err != nil {
					logger.Warn("candidate failed to compare", "path", rec.Path, "error", err)
					continue
				}
				if score >= threshold {
					results <- Match{Record: rec, Score: score}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range candidates {
			select {
			case <-ctx.Done():
				return
			case jobs <- rec:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var matches []Match
	for m := range results {
		matches = append(matches, m)
	}
	return matches
}

// defaultWorkers mirrors the scan pool sizing: verification is CPU bound in
// the same way, three quarters of the CPUs with a floor of one.
func defaultWorkers() int {
	n := runtime.NumCPU() * 3 / 4
	if n < 1 {
		return 1
	}
	return n
}
