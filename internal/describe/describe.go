// Package describe implements the description stage: a textual caption per
// image, written to <stem>_description.txt.
package describe

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dataset-coach/internal/cache"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/metrics"
	"dataset-coach/internal/sdapi"
)

var stageParams = map[string]interface{}{"stage": "describe"}

// Describer produces a caption for the image at path.
type Describer interface {
	Describe(ctx context.Context, path string) (string, error)
}

// InterrogateDescriber captions images through the generation service's
// interrogation endpoint.
type InterrogateDescriber struct {
	client *sdapi.Client
	model  string
}

// NewInterrogateDescriber creates a Describer backed by the given client.
// An empty model defaults to "clip".
func NewInterrogateDescriber(client *sdapi.Client, model string) *InterrogateDescriber {
	if model == "" {
		model = "clip"
	}
	return &InterrogateDescriber{client: client, model: model}
}

// Describe encodes the image file and asks the service for a caption.
func (d *InterrogateDescriber) Describe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	caption, err := d.client.Interrogate(ctx, base64.StdEncoding.EncodeToString(data), d.model)
	if err != nil {
		return "", fmt.Errorf("interrogation failed for %s: %w", path, err)
	}
	return CleanCaption(caption), nil
}

// CleanCaption normalizes a raw caption: whitespace trimmed, any leading
// "Caption:" label removed, and terminal punctuation ensured.
func CleanCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	if len(caption) >= 8 && strings.EqualFold(caption[:8], "caption:") {
		caption = strings.TrimSpace(caption[8:])
	}
	if caption == "" {
		return caption
	}
	switch caption[len(caption)-1] {
	case '.', '!', '?':
	default:
		caption += "."
	}
	return caption
}

// Summary reports the outcome of one description run.
type Summary struct {
	Described int
	Reused    int
	Failed    int
	Files     []string
	// Descriptions maps each processed source to its description file.
	Descriptions map[string]string
	// FailedPaths lists the sources that could not be processed.
	FailedPaths []string
}

// Generator writes one description file per image.
type Generator struct {
	describer Describer
	store     *cache.Store
	overwrite bool
}

// NewGenerator creates a Generator. A nil store disables caching.
func NewGenerator(d Describer, store *cache.Store, overwrite bool) *Generator {
	return &Generator{describer: d, store: store, overwrite: overwrite}
}

// OutputPath returns the description file for source under outputDir (or
// next to the source when outputDir is empty).
func OutputPath(source, outputDir string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, stem+"_description.txt")
}

// Run captions every input. Individual failures are counted, never fatal.
func (g *Generator) Run(ctx context.Context, paths []string, outputDir string) (*Summary, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("describe").Observe(time.Since(start).Seconds())
	}()

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
		}
	}

	summary := &Summary{Descriptions: make(map[string]string)}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dest := OutputPath(path, outputDir)

		if g.store != nil {
			if res := g.store.IsCached(path, dest, stageParams); res.Hit {
				logging.Debug("Cache hit for description of %s", path)
				summary.Reused++
				summary.Files = append(summary.Files, dest)
				summary.Descriptions[path] = dest
				metrics.StageProcessedTotal.WithLabelValues("describe", "ok").Inc()
				continue
			}
		}

		if !g.overwrite {
			if _, err := os.Stat(dest); err == nil {
				logging.Debug("Description already exists for %s: %s", path, dest)
				summary.Reused++
				summary.Files = append(summary.Files, dest)
				summary.Descriptions[path] = dest
				if g.store != nil {
					g.store.AddToCache(path, dest, stageParams)
				}
				metrics.StageProcessedTotal.WithLabelValues("describe", "ok").Inc()
				continue
			}
		}

		caption, err := g.describer.Describe(ctx, path)
		if err != nil {
			logging.Error("Failed to describe %s: %v", path, err)
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, path)
			metrics.StageProcessedTotal.WithLabelValues("describe", "failed").Inc()
			continue
		}

		if err := os.WriteFile(dest, []byte(caption+"\n"), 0644); err != nil {
			logging.Error("Failed to write description for %s: %v", path, err)
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, path)
			metrics.StageProcessedTotal.WithLabelValues("describe", "failed").Inc()
			continue
		}

		summary.Described++
		summary.Files = append(summary.Files, dest)
		summary.Descriptions[path] = dest
		if g.store != nil {
			g.store.AddToCache(path, dest, stageParams)
		}
		metrics.StageProcessedTotal.WithLabelValues("describe", "ok").Inc()
	}

	logging.Info("Describe complete: %d described, %d reused, %d failed",
		summary.Described, summary.Reused, summary.Failed)
	return summary, nil
}
