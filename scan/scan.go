package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"imagedex/fingerprint"
	"imagedex/index"
	"imagedex/raster"
)

// Options configures a single scan run.
type Options struct {
	// Root is the directory walked for image files.
	Root string
	// Prefix tags every record written during this run.
	Prefix string
	// Force reprocesses files even when their record is current.
	Force bool
	// Workers bounds concurrent file processing. Zero means DefaultWorkers.
	Workers int
	// Store receives the computed records.
	Store  *index.Store
	Logger *slog.Logger
	// Progress draws a terminal progress bar when true.
	Progress bool
}

// FileError records one file the scan could not process.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) String() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Report summarizes a completed (or aborted) scan.
type Report struct {
	Seen     int
	Indexed  int
	Updated  int
	Skipped  int
	Failed   int
	Failures []FileError
	Elapsed  time.Duration
}

// DefaultWorkers returns the worker count used when Options.Workers is zero,
// three quarters of the CPUs with a floor of one.
func DefaultWorkers() int {
	n := runtime.NumCPU() * 3 / 4
	if n < 1 {
		return 1
	}
	return n
}

// Run walks opts.Root, fingerprints every supported image file and reconciles
// each against the store. Per-file failures are recorded in the report and do
// not stop the run. Cancelling ctx stops the scan between files; the partial
// report is returned together with the context error.
func Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	if opts.Store == nil {
		return nil, fmt.Errorf("scan: no store configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: %s is not a directory", opts.Root)
	}

	files, err := collectFiles(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	report := &Report{Seen: len(files)}
	logger.Info("scan started",
		"root", opts.Root, "files", len(files), "workers", workers, "force", opts.Force)

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	type result struct {
		path    string
		outcome index.UpsertOutcome
		err     error
	}

	jobs := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				outcome, err := processFile(ctx, opts, path)
				results <- result{path: path, outcome: outcome, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range files {
			select {
			case <-ctx.Done():
				return
			case jobs <- path:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if bar != nil {
			bar.Add(1)
		}
		if res.err != nil {
			// Files abandoned by cancellation were not processed at
			// all and belong to no report bucket.
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				continue
			}
			report.Failed++
			report.Failures = append(report.Failures, FileError{Path: res.path, Err: res.err})
			logger.Warn("file failed", "path", res.path, "error", res.err)
			continue
		}
		switch res.outcome {
		case index.Inserted:
			report.Indexed++
		case index.Updated:
			report.Updated++
		default:
			report.Skipped++
		}
	}
	if bar != nil {
		bar.Finish()
	}

	report.Elapsed = time.Since(start)
	logger.Info("scan finished",
		"indexed", report.Indexed, "updated", report.Updated,
		"skipped", report.Skipped, "failed", report.Failed,
		"elapsed", report.Elapsed)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// collectFiles gathers every regular file under root with a supported image
// extension, RAW formats included.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if raster.IsSupported(ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// processFile reconciles one file against the store, decoding and hashing it
// only when the reconciliation decision requires it.
func processFile(ctx context.Context, opts Options, path string) (index.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return index.Skipped, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return index.Skipped, err
	}
	modified := fi.ModTime()

	stored, exists, err := opts.Store.Exists(ctx, path, opts.Prefix)
	if err != nil {
		return index.Skipped, err
	}
	if Reconcile(exists, stored, modified, opts.Force) == DecisionSkip {
		return index.Skipped, nil
	}

	r, err := raster.Normalize(path)
	if err != nil {
		return index.Skipped, err
	}
	avg, perceptual, err := fingerprint.Compute(r)
	if err != nil {
		return index.Skipped, err
	}

	rec := index.Record{
		Path:           path,
		SourcePrefix:   opts.Prefix,
		Format:         r.Format,
		Width:          r.Width,
		Height:         r.Height,
		ModifiedAt:     modified,
		Size:           fi.Size(),
		AverageHash:    avg,
		PerceptualHash: perceptual,
		IsRawFormat:    r.IsRaw,
		HashVersion:    fingerprint.SchemeVersion,
	}
	return opts.Store.Upsert(ctx, rec, opts.Force)
}
