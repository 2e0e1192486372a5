// Package rename implements the first pipeline stage: images are copied to
// content-addressed names so that two source files with identical bytes
// collapse to a single output file.
package rename

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dataset-coach/internal/cache"
	"dataset-coach/internal/hashing"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/media"
	"dataset-coach/internal/mediatypes"
	"dataset-coach/internal/metrics"
	"dataset-coach/internal/workers"
)

// stageParams keys rename cache entries apart from other stages.
var stageParams = map[string]interface{}{"stage": "rename"}

// Summary reports the outcome of one rename run.
type Summary struct {
	// Copied counts sources that produced a new output file.
	Copied int
	// Reused counts sources whose output already existed (cache hit or
	// identical content already copied).
	Reused int
	// Failed counts sources that could not be processed.
	Failed int
	// Outputs is the sorted, de-duplicated list of output files.
	Outputs []string
	// Renamed maps each processed source to its output file.
	Renamed map[string]string
	// FailedPaths lists the sources that could not be processed.
	FailedPaths []string
}

// Renamer copies images into an output directory under content-hash names.
type Renamer struct {
	store   *cache.Store
	workers int
}

// New creates a Renamer. workerCount <= 0 picks the file-stage default.
func New(store *cache.Store, workerCount int) *Renamer {
	if workerCount <= 0 {
		workerCount = workers.ForFiles()
	}
	return &Renamer{store: store, workers: workerCount}
}

// Run scans inputDir recursively and processes every supported image,
// writing outputs into outputDir. Individual failures are counted, never
// fatal; the error return covers only scan/setup problems.
func (r *Renamer) Run(ctx context.Context, inputDir, outputDir string) (*Summary, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("rename").Observe(time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	var candidates []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Skipping %s during scan: %v", path, err)
			return nil
		}
		if d.IsDir() || !mediatypes.IsImageFile(path) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", inputDir, err)
	}

	logging.Info("Renaming %d images from %s with %d workers", len(candidates), inputDir, r.workers)

	var (
		mu      sync.Mutex
		summary = Summary{Renamed: make(map[string]string)}
		outputs = make(map[string]bool)
	)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				dest, reused, err := r.processOne(path, outputDir)
				mu.Lock()
				switch {
				case err != nil:
					logging.Error("Failed to process %s: %v", path, err)
					summary.Failed++
					summary.FailedPaths = append(summary.FailedPaths, path)
					metrics.StageProcessedTotal.WithLabelValues("rename", "failed").Inc()
				case reused:
					summary.Reused++
					summary.Renamed[path] = dest
					outputs[dest] = true
					metrics.StageProcessedTotal.WithLabelValues("rename", "ok").Inc()
				default:
					summary.Copied++
					summary.Renamed[path] = dest
					outputs[dest] = true
					metrics.StageProcessedTotal.WithLabelValues("rename", "ok").Inc()
				}
				mu.Unlock()
			}
		}()
	}

loop:
	for _, path := range candidates {
		select {
		case <-ctx.Done():
			break loop
		case jobs <- path:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for dest := range outputs {
		summary.Outputs = append(summary.Outputs, dest)
	}
	sort.Strings(summary.Outputs)

	logging.Info("Rename complete: %d copied, %d reused, %d failed",
		summary.Copied, summary.Reused, summary.Failed)
	return &summary, nil
}

// processOne copies a single image to its content-addressed destination.
// Returns the destination and whether an existing output was reused.
func (r *Renamer) processOne(path, outputDir string) (string, bool, error) {
	format, err := media.VerifyImage(path)
	if err != nil {
		return "", false, err
	}

	hash, err := hashing.ContentHash(path)
	if err != nil {
		return "", false, err
	}

	// The extension comes from the sniffed content, so mislabeled files
	// land under their real format and .jpeg collapses to .jpg.
	dest := filepath.Join(outputDir, hash+format.Extension())

	if r.store != nil {
		if res := r.store.IsCached(path, dest, stageParams); res.Hit {
			logging.Debug("Cache hit for %s -> %s", path, dest)
			return dest, true, nil
		}
	}

	if _, err := os.Stat(dest); err == nil {
		// Identical content already produced this output.
		logging.Debug("Reusing existing output for %s: %s", path, dest)
		if r.store != nil {
			r.store.AddToCache(path, dest, stageParams)
		}
		return dest, true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("failed to check destination %s: %w", dest, err)
	}

	if err := copyFile(path, dest); err != nil {
		return "", false, err
	}
	logging.Debug("Copied %s -> %s", path, dest)

	if r.store != nil {
		r.store.AddToCache(path, dest, stageParams)
	}
	return dest, false, nil
}

// copyFile copies src to dest via a temp file and rename, so concurrent
// workers racing on the same content-addressed destination both land on a
// complete file.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".copy-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, in)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to copy %s to %s: copy=%v close=%v", src, dest, copyErr, closeErr)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize %s: %w", dest, err)
	}
	return nil
}
