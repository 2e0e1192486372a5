package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dataset-coach/internal/hashing"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/metrics"

	"github.com/cespare/xxhash/v2"
)

// Version is the cache file format version. A persisted cache with a
// different version is discarded on load (the file itself is left in place
// until the next save overwrites it).
const Version = 1

// Entry records the state of one processed (source, params) pair.
type Entry struct {
	// Hash is the content fingerprint of the source file at processing time.
	// It is never mutated in place; a fingerprint mismatch produces a new
	// entry under the same key.
	Hash       string                 `json:"hash"`
	Timestamp  time.Time              `json:"timestamp"`
	SourcePath string                 `json:"source_path"`
	Params     map[string]interface{} `json:"params,omitempty"`
	OutputPath string                 `json:"output_path,omitempty"`
}

// Result is the outcome of a cache lookup. Path carries the recorded output
// path on a hit, when one is known; it is empty for entries that only record
// "already seen".
type Result struct {
	Hit  bool
	Path string
}

type fileFormat struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Store is a persistent mapping from derived cache keys to entries. A Store
// with an empty backing path is memory-only: lookups and inserts work, saves
// are no-ops.
//
// All operations are safe for concurrent use; the renamer runs them from
// multiple workers.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// New creates a Store backed by the given file, loading any persisted
// entries. A missing, corrupt, or version-mismatched file yields an empty
// store, never an error: a cache fault must not abort the pipeline.
func New(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]Entry),
	}
	s.load()
	return s
}

// NewMemory creates a memory-only Store.
func NewMemory() *Store {
	return New("")
}

func (s *Store) load() {
	if s.path == "" {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to read cache file %s, starting empty: %v", s.path, err)
		}
		return
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		logging.Warn("Cache file %s is malformed, starting empty: %v", s.path, err)
		return
	}
	if f.Version != Version {
		logging.Warn("Cache file %s has version %d, expected %d; starting empty", s.path, f.Version, Version)
		return
	}
	if f.Entries != nil {
		s.entries = f.Entries
	}
	logging.Debug("Cache loaded from %s with %d entries", s.path, len(s.entries))
	metrics.CacheEntries.Set(float64(len(s.entries)))
}

// persistLocked writes the store to disk atomically (temp file + rename).
// Callers must hold s.mu. Failures are logged, never propagated: the
// in-memory state stays authoritative for the process lifetime.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Error("Failed to create cache directory %s: %v", dir, err)
		metrics.CachePersistErrors.Inc()
		return
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		logging.Error("Failed to create temporary cache file in %s: %v", dir, err)
		metrics.CachePersistErrors.Inc()
		return
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(fileFormat{Version: Version, Entries: s.entries})
	closeErr := tmp.Close()
	if encodeErr != nil || closeErr != nil {
		logging.Error("Failed to write cache file %s: encode=%v close=%v", s.path, encodeErr, closeErr)
		metrics.CachePersistErrors.Inc()
		_ = os.Remove(tmpPath)
		return
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		logging.Error("Failed to replace cache file %s: %v", s.path, err)
		metrics.CachePersistErrors.Inc()
		_ = os.Remove(tmpPath)
		return
	}

	logging.Debug("Cache saved to %s (%d entries)", s.path, len(s.entries))
	metrics.CacheEntries.Set(float64(len(s.entries)))
}

// Save persists the store. With no backing path this is a no-op.
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
}

// Len returns the number of entries currently in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// resolvePath returns an absolute, symlink-resolved form of path. Resolution
// failures fall back to the cleaned absolute path so that key derivation
// stays deterministic even for paths that do not exist yet.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// canonicalParams filters out nil values and serializes the rest
// deterministically. encoding/json writes map keys in sorted order, so two
// parameter maps with equal contents always serialize identically regardless
// of insertion order, including nested maps.
func canonicalParams(params map[string]interface{}) (map[string]interface{}, string) {
	if len(params) == 0 {
		return nil, ""
	}
	filtered := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		filtered[k] = v
	}
	if len(filtered) == 0 {
		return nil, ""
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		// Parameters are plain scalars and maps in practice; treat anything
		// unserializable as absent rather than failing the lookup.
		logging.Warn("Failed to serialize cache params: %v", err)
		return filtered, ""
	}
	return filtered, string(data)
}

// DeriveKey produces the cache key for a (path, params) pair: the resolved
// absolute source path and the canonical parameter serialization, digested
// together. The digest is deterministic and collision-resistant across the
// practical key space, and keeps persisted keys short.
func DeriveKey(path string, params map[string]interface{}) string {
	resolved := resolvePath(path)
	_, paramStr := canonicalParams(params)

	d := xxhash.New()
	_, _ = d.WriteString(resolved)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(paramStr)
	return fmt.Sprintf("%016x", d.Sum64())
}

// IsCached reports whether (source, params) has a valid cache entry.
//
// A hit requires all of: the source file exists, an entry exists under the
// derived key, the source's current fingerprint matches the stored one, and
// any recorded output file still exists on disk. When outputPath is
// non-empty it must also exist and match the recorded output path; if the
// entry has no recorded output yet, the supplied path is backfilled and
// persisted. Unexpected faults degrade to a miss.
func (s *Store) IsCached(source, outputPath string, params map[string]interface{}) Result {
	resolved := resolvePath(source)
	if _, err := os.Stat(resolved); err != nil {
		logging.Debug("Cache miss for %s: source not accessible: %v", source, err)
		metrics.CacheMissesTotal.WithLabelValues("source_missing").Inc()
		return Result{}
	}

	key := DeriveKey(resolved, params)

	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		logging.Debug("Cache miss for %s: no entry", source)
		metrics.CacheMissesTotal.WithLabelValues("absent").Inc()
		return Result{}
	}

	current, err := hashing.Fingerprint(resolved)
	if err != nil {
		logging.Warn("Cache miss for %s: fingerprint failed: %v", source, err)
		metrics.CacheMissesTotal.WithLabelValues("error").Inc()
		return Result{}
	}
	if current != entry.Hash {
		logging.Debug("Cache miss for %s: source changed since caching", source)
		metrics.CacheMissesTotal.WithLabelValues("fingerprint").Inc()
		return Result{}
	}

	if outputPath != "" {
		resolvedOutput := resolvePath(outputPath)
		if _, err := os.Stat(resolvedOutput); err != nil {
			logging.Debug("Cache miss for %s: expected output %s missing", source, outputPath)
			metrics.CacheMissesTotal.WithLabelValues("output_missing").Inc()
			return Result{}
		}
		if entry.OutputPath != "" {
			if resolvePath(entry.OutputPath) != resolvedOutput {
				logging.Warn("Cache miss for %s: output path mismatch (recorded %s, expected %s)",
					source, entry.OutputPath, outputPath)
				metrics.CacheMissesTotal.WithLabelValues("output_mismatch").Inc()
				return Result{}
			}
		} else {
			// Backfill: the entry recorded no output but the caller knows
			// one matching the already-verified fingerprint.
			s.mu.Lock()
			if e, ok := s.entries[key]; ok && e.OutputPath == "" {
				e.OutputPath = resolvedOutput
				s.entries[key] = e
				entry = e
				s.persistLocked()
			}
			s.mu.Unlock()
			logging.Debug("Cache entry for %s backfilled with output %s", source, resolvedOutput)
		}
	}

	if entry.OutputPath != "" {
		if _, err := os.Stat(entry.OutputPath); err != nil {
			logging.Debug("Cache miss for %s: recorded output %s missing", source, entry.OutputPath)
			metrics.CacheMissesTotal.WithLabelValues("output_missing").Inc()
			return Result{}
		}
	}

	metrics.CacheHitsTotal.Inc()
	return Result{Hit: true, Path: entry.OutputPath}
}

// AddToCache builds (or overwrites) the entry for (source, params). A
// missing source or fingerprint failure is logged and ignored; cache faults
// never abort the pipeline.
func (s *Store) AddToCache(source, outputPath string, params map[string]interface{}) {
	resolved := resolvePath(source)
	if _, err := os.Stat(resolved); err != nil {
		logging.Warn("Not caching %s: source not accessible: %v", source, err)
		return
	}

	fp, err := hashing.Fingerprint(resolved)
	if err != nil {
		logging.Error("Not caching %s: fingerprint failed: %v", source, err)
		return
	}

	filtered, _ := canonicalParams(params)
	entry := Entry{
		Hash:       fp,
		Timestamp:  time.Now(),
		SourcePath: resolved,
		Params:     filtered,
	}
	if outputPath != "" {
		entry.OutputPath = resolvePath(outputPath)
	}

	key := DeriveKey(resolved, params)

	s.mu.Lock()
	s.entries[key] = entry
	s.persistLocked()
	s.mu.Unlock()

	logging.Debug("Cache entry added for %s (key %s)", source, key)
}

// RemoveFromCache deletes the entry for (source, params), if present.
func (s *Store) RemoveFromCache(source string, params map[string]interface{}) {
	key := DeriveKey(resolvePath(source), params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	s.persistLocked()
	logging.Debug("Cache entry removed for %s (key %s)", source, key)
}

// Clear empties the store and persists the empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	s.persistLocked()
	logging.Info("Cache cleared")
}

// Cleanup removes every entry older than maxAgeDays, deleting the referenced
// output file when one exists (best effort). Returns the number of entries
// removed. The store is persisted once at the end.
func (s *Store) Cleanup(maxAgeDays int) int {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Timestamp.IsZero() || !entry.Timestamp.Before(cutoff) {
			continue
		}
		if entry.OutputPath != "" {
			if err := os.Remove(entry.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				logging.Warn("Failed to delete expired output %s: %v", entry.OutputPath, err)
			} else if err == nil {
				logging.Debug("Deleted expired output %s", entry.OutputPath)
			}
		}
		delete(s.entries, key)
		removed++
	}

	if removed > 0 {
		s.persistLocked()
		metrics.CacheEntriesEvicted.Add(float64(removed))
		logging.Info("Cache cleanup removed %d entries older than %d days", removed, maxAgeDays)
	}
	return removed
}
