package enhance

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"dataset-coach/internal/cache"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/media"
	"dataset-coach/internal/metrics"
	"dataset-coach/internal/sdapi"
)

const (
	// outputSuffix is appended to the source stem for default output names.
	// Outputs are always PNG regardless of the source format.
	outputSuffix = "_upscaled"

	defaultColorizePrompt = "colorize this black and white image, natural colors, high quality, detailed"
	monochromeTag         = ", black and white, monochrome"
	colorizeDenoising     = 0.7
)

// Result is the per-image outcome of an enhancement call. The zero value is
// the failure sentinel: no output was produced for that input.
type Result struct {
	Path       string
	Monochrome bool
}

// Failed reports whether the result is the failure sentinel.
func (r Result) Failed() bool {
	return r.Path == ""
}

// Enhancer upscales (and optionally colorizes) images through the
// generation service, consulting the cache to skip images already done.
type Enhancer struct {
	client *sdapi.Client
	store  *cache.Store
	opts   Options
}

// New creates an Enhancer. Options are validated up front; a nil store
// disables caching entirely.
func New(client *sdapi.Client, store *cache.Store, opts Options) (*Enhancer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Enhancer{client: client, store: store, opts: opts}, nil
}

// cacheParams is the canonical parameter set for enhancement cache keys.
// The service URL is included so results from different backends never
// alias each other.
func (e *Enhancer) cacheParams() map[string]interface{} {
	return map[string]interface{}{
		"api_url":            e.client.BaseURL(),
		"scale":              e.opts.Scale,
		"upscaler":           e.opts.Upscaler,
		"denoising_strength": e.opts.DenoisingStrength,
		"steps":              e.opts.Steps,
		"cfg_scale":          e.opts.CFGScale,
		"sampler":            e.opts.Sampler,
		"auto_colorize":      e.opts.AutoColorize,
	}
}

// OutputPath returns the output file for source under outputDir (or next to
// the source when outputDir is empty).
func (e *Enhancer) OutputPath(source, outputDir string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, stem+outputSuffix+".png")
}

// batchItem tracks one image enqueued for the remote batch call. The index
// is the position in the caller's input list, which the result must land in
// regardless of enqueue order.
type batchItem struct {
	index      int
	source     string
	output     string
	payload    string
	monochrome bool
}

// UpscaleBatch enhances the given images, preferring a single remote batch
// call. The returned slice always has exactly len(sources) entries, in input
// order; an entry is the failure sentinel when that image could not be
// processed. Duplicate source paths within one call are processed once.
func (e *Enhancer) UpscaleBatch(ctx context.Context, sources []string, outputDir string) []Result {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("enhance").Observe(time.Since(start).Seconds())
	}()

	results := make([]Result, len(sources))
	seen := make(map[string]bool, len(sources))
	var items []batchItem

	for i, source := range sources {
		key, err := filepath.Abs(source)
		if err != nil {
			key = source
		}
		if seen[key] {
			logging.Debug("Skipping duplicate input %s", source)
			continue
		}
		seen[key] = true

		output := e.OutputPath(source, outputDir)

		if e.store != nil && !e.opts.SkipCache {
			if res := e.store.IsCached(source, output, e.cacheParams()); res.Hit {
				path := res.Path
				if path == "" {
					path = output
				}
				logging.Info("Using cached result for %s: %s", source, path)
				results[i] = Result{Path: path}
				metrics.StageProcessedTotal.WithLabelValues("enhance", "ok").Inc()
				continue
			}
		}

		payload, mono, err := e.preparePayload(ctx, source)
		if err != nil {
			logging.Error("Failed to prepare %s: %v", source, err)
			metrics.StageProcessedTotal.WithLabelValues("enhance", "failed").Inc()
			continue
		}

		items = append(items, batchItem{
			index:      i,
			source:     source,
			output:     output,
			payload:    payload,
			monochrome: mono,
		})
	}

	if len(items) == 0 {
		return results
	}

	req := sdapi.BatchUpscaleRequest{
		ResizeMode:      0,
		ShowResults:     true,
		UpscalingResize: e.opts.Scale,
		Upscaler1:       e.opts.Upscaler,
	}
	for _, item := range items {
		req.ImageList = append(req.ImageList, sdapi.ImagePayload{
			Data: item.payload,
			Name: filepath.Base(item.source),
		})
	}

	logging.Info("Sending batch of %d images for upscaling", len(items))
	images, err := e.client.UpscaleBatch(ctx, req)
	if err != nil {
		logging.Warn("Batch upscale failed, falling back to per-image calls: %v", err)
		metrics.BatchFallbacksTotal.Inc()
		e.fallback(ctx, items, results)
		return results
	}

	if len(images) != len(items) {
		logging.Warn("Batch returned %d images for %d requests; matching positionally", len(images), len(items))
	}
	n := len(images)
	if len(items) < n {
		n = len(items)
	}

	for j := 0; j < n; j++ {
		item := items[j]
		if err := media.DecodeBase64ToFile(images[j], item.output, e.opts.Overwrite); err != nil {
			logging.Error("Failed to save output for %s: %v", item.source, err)
			metrics.StageProcessedTotal.WithLabelValues("enhance", "failed").Inc()
			continue
		}
		if e.store != nil {
			e.store.AddToCache(item.source, item.output, e.cacheParams())
		}
		results[item.index] = Result{Path: item.output, Monochrome: item.monochrome}
		metrics.StageProcessedTotal.WithLabelValues("enhance", "ok").Inc()
	}
	for j := n; j < len(items); j++ {
		metrics.StageProcessedTotal.WithLabelValues("enhance", "failed").Inc()
	}

	return results
}

// fallback processes each enqueued item through the single-image path,
// writing outcomes at their original indices. Individual failures keep the
// failure sentinel for that index only.
func (e *Enhancer) fallback(ctx context.Context, items []batchItem, results []Result) {
	for _, item := range items {
		res, err := e.UpscaleImage(ctx, item.source, item.output)
		if err != nil {
			logging.Error("Fallback enhancement failed for %s: %v", item.source, err)
			metrics.StageProcessedTotal.WithLabelValues("enhance", "failed").Inc()
			continue
		}
		results[item.index] = res
		metrics.StageProcessedTotal.WithLabelValues("enhance", "ok").Inc()
	}
}

// UpscaleImage enhances one image via img2img with the high-resolution pass
// enabled. The cache is consulted but not written here; only batch
// processing records entries, so a direct call always reflects the current
// service output.
func (e *Enhancer) UpscaleImage(ctx context.Context, source, output string) (Result, error) {
	if output == "" {
		output = e.OutputPath(source, "")
	}

	if e.store != nil && !e.opts.SkipCache {
		if res := e.store.IsCached(source, output, e.cacheParams()); res.Hit {
			path := res.Path
			if path == "" {
				path = output
			}
			logging.Info("Using cached result for %s: %s", source, path)
			return Result{Path: path}, nil
		}
	}

	img, err := media.Preprocess(source)
	if err != nil {
		return Result{}, err
	}
	mono := media.IsMonochrome(img)

	payload, colorized := e.maybeColorize(ctx, img, source, mono)

	prompt := e.opts.Prompt
	if mono && !colorized {
		prompt += monochromeTag
	}

	req := sdapi.Img2ImgRequest{
		InitImages:        []string{payload},
		Prompt:            prompt,
		NegativePrompt:    e.opts.NegativePrompt,
		Steps:             e.opts.Steps,
		CFGScale:          e.opts.CFGScale,
		SamplerName:       e.opts.Sampler,
		Scheduler:         "Automatic",
		DenoisingStrength: e.opts.DenoisingStrength,
		EnableHR:          true,
		HRScale:           e.opts.Scale,
		HRUpscaler:        e.opts.Upscaler,
		HRSecondPassSteps: e.opts.Steps * 7 / 10,
	}

	images, err := e.client.Img2Img(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("enhancement request failed for %s: %w", source, err)
	}

	if err := media.DecodeBase64ToFile(images[0], output, e.opts.Overwrite); err != nil {
		return Result{}, err
	}

	logging.Info("Enhanced %s -> %s", source, output)
	return Result{Path: output, Monochrome: mono}, nil
}

// preparePayload normalizes the source image, detects monochrome, and runs
// the optional colorization pass, returning the base64 payload for the
// batch request.
func (e *Enhancer) preparePayload(ctx context.Context, source string) (string, bool, error) {
	img, err := media.Preprocess(source)
	if err != nil {
		return "", false, err
	}
	mono := media.IsMonochrome(img)
	payload, _ := e.maybeColorize(ctx, img, source, mono)
	if payload == "" {
		return "", mono, fmt.Errorf("failed to encode %s", source)
	}
	return payload, mono, nil
}

// maybeColorize returns the base64 payload for img, colorized when mono and
// auto-colorize is enabled. Colorization failure is non-fatal: the original
// image is used instead and the second return value is false.
func (e *Enhancer) maybeColorize(ctx context.Context, img image.Image, source string, mono bool) (string, bool) {
	payload, err := media.EncodePNGBase64(img)
	if err != nil {
		logging.Error("Failed to encode %s: %v", source, err)
		return "", false
	}

	if !mono || !e.opts.AutoColorize {
		return payload, false
	}

	prompt := e.opts.ColorizePrompt
	if prompt == "" {
		prompt = defaultColorizePrompt
	}

	logging.Info("Monochrome image detected, colorizing %s", source)
	req := sdapi.Img2ImgRequest{
		InitImages:        []string{payload},
		Prompt:            prompt,
		NegativePrompt:    e.opts.ColorizeNegativePrompt,
		Steps:             e.opts.Steps,
		CFGScale:          e.opts.CFGScale,
		SamplerName:       e.opts.Sampler,
		Scheduler:         "Automatic",
		DenoisingStrength: colorizeDenoising,
		RestoreFaces:      true,
	}
	images, err := e.client.Img2Img(ctx, req)
	if err != nil {
		logging.Warn("Colorization failed for %s, using original: %v", source, err)
		return payload, false
	}
	return images[0], true
}
