// Package workers sizes the worker pools for the file-bound pipeline
// stages.
package workers

import (
	"os"
	"runtime"
	"strconv"

	"dataset-coach/internal/logging"
)

// fileWorkerCap bounds the hash-and-copy pool. The rename stage streams
// whole image files; past a handful of concurrent readers extra workers
// only add seek contention on the source volume.
const fileWorkerCap = 8

// envVar overrides the heuristic when set to a positive integer.
const envVar = "PIPELINE_WORKERS"

// ForFiles returns the pool size for hash-and-copy work: two workers per
// CPU so one can block on disk while another hashes, capped at
// fileWorkerCap. GOMAXPROCS respects container CPU limits.
func ForFiles() int {
	if n, ok := override(); ok {
		return n
	}
	n := runtime.GOMAXPROCS(0) * 2
	if n > fileWorkerCap {
		n = fileWorkerCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// override returns the PIPELINE_WORKERS value when it parses as a
// positive integer. An explicit override is taken as-is, cap included.
func override() (int, bool) {
	v := os.Getenv(envVar)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logging.Warn("Ignoring invalid %s value %q", envVar, v)
		return 0, false
	}
	return n, true
}
