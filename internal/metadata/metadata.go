// Package metadata implements the metadata-extraction stage: one JSON
// document per unique content hash, written under a metadata subdirectory.
package metadata

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"dataset-coach/internal/cache"
	"dataset-coach/internal/hashing"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/mediatypes"
	"dataset-coach/internal/metrics"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

var stageParams = map[string]interface{}{"stage": "metadata"}

// Info is the extracted metadata for one image.
type Info struct {
	SourcePath  string    `json:"source_path"`
	ContentHash string    `json:"content_hash"`
	Format      string    `json:"format"`
	MimeType    string    `json:"mime_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FileSize    int64     `json:"file_size"`
	ModifiedAt  time.Time `json:"modified_at"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Summary reports the outcome of one extraction run.
type Summary struct {
	Extracted int
	Reused    int
	Failed    int
	// Files lists the metadata documents covering this run's inputs.
	Files []string
	// Documents maps each processed source to its metadata document.
	Documents map[string]string
	// FailedPaths lists the sources that could not be processed.
	FailedPaths []string
}

// Extractor writes metadata documents keyed by content hash, so identical
// images share one document.
type Extractor struct {
	store *cache.Store
}

// New creates an Extractor. A nil store disables caching.
func New(store *cache.Store) *Extractor {
	return &Extractor{store: store}
}

// Extract reads the image header at path and returns its metadata.
func Extract(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	hash, err := hashing.ContentHash(path)
	if err != nil {
		return nil, err
	}

	return &Info{
		SourcePath:  path,
		ContentHash: hash,
		Format:      format,
		MimeType:    mediatypes.GetMimeType(filepath.Ext(path)),
		Width:       cfg.Width,
		Height:      cfg.Height,
		FileSize:    stat.Size(),
		ModifiedAt:  stat.ModTime(),
		ExtractedAt: time.Now(),
	}, nil
}

// Run extracts metadata for every input, writing one document per unique
// content hash under outputDir/metadata. Repeated content within one run is
// processed once; existing documents from earlier runs are reused.
func (e *Extractor) Run(paths []string, outputDir string) (*Summary, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("metadata").Observe(time.Since(start).Seconds())
	}()

	metaDir := filepath.Join(outputDir, "metadata")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory %s: %w", metaDir, err)
	}

	summary := &Summary{Documents: make(map[string]string)}
	seen := make(map[string]bool)

	for _, path := range paths {
		hash, err := hashing.ContentHash(path)
		if err != nil {
			logging.Error("Failed to hash %s: %v", path, err)
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, path)
			metrics.StageProcessedTotal.WithLabelValues("metadata", "failed").Inc()
			continue
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true

		dest := filepath.Join(metaDir, hash+"_metadata.json")

		if e.store != nil {
			if res := e.store.IsCached(path, dest, stageParams); res.Hit {
				logging.Debug("Cache hit for metadata of %s", path)
				summary.Reused++
				summary.Files = append(summary.Files, dest)
				summary.Documents[path] = dest
				metrics.StageProcessedTotal.WithLabelValues("metadata", "ok").Inc()
				continue
			}
		}

		if _, err := os.Stat(dest); err == nil {
			logging.Debug("Metadata document already exists for %s: %s", path, dest)
			summary.Reused++
			summary.Files = append(summary.Files, dest)
			summary.Documents[path] = dest
			if e.store != nil {
				e.store.AddToCache(path, dest, stageParams)
			}
			metrics.StageProcessedTotal.WithLabelValues("metadata", "ok").Inc()
			continue
		}

		info, err := Extract(path)
		if err != nil {
			logging.Error("Failed to extract metadata from %s: %v", path, err)
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, path)
			metrics.StageProcessedTotal.WithLabelValues("metadata", "failed").Inc()
			continue
		}

		if err := writeInfo(info, dest); err != nil {
			logging.Error("Failed to write metadata for %s: %v", path, err)
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, path)
			metrics.StageProcessedTotal.WithLabelValues("metadata", "failed").Inc()
			continue
		}

		summary.Extracted++
		summary.Files = append(summary.Files, dest)
		summary.Documents[path] = dest
		if e.store != nil {
			e.store.AddToCache(path, dest, stageParams)
		}
		metrics.StageProcessedTotal.WithLabelValues("metadata", "ok").Inc()
	}

	logging.Info("Metadata complete: %d extracted, %d reused, %d failed",
		summary.Extracted, summary.Reused, summary.Failed)
	return summary, nil
}

func writeInfo(info *Info, dest string) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

// Load reads a metadata document back.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &info, nil
}
