package enhance

import "fmt"

// Options configures the enhancement stage. Fields are fixed for the
// lifetime of an Enhancer; they participate in cache-key derivation, so two
// runs with different options never share cache entries.
type Options struct {
	// Scale is the upscaling factor, 1.0 through 4.0.
	Scale float64
	// Upscaler is the upscaler model name on the generation service.
	Upscaler string
	// DenoisingStrength for img2img enhancement, 0.0 through 1.0.
	DenoisingStrength float64
	// Steps is the sampling step count for img2img.
	Steps int
	// CFGScale is the guidance scale for img2img.
	CFGScale float64
	// Sampler is the sampler name for img2img.
	Sampler string
	// Prompt and NegativePrompt steer img2img enhancement.
	Prompt         string
	NegativePrompt string
	// AutoColorize runs a colorization pass on images detected as
	// monochrome before upscaling.
	AutoColorize bool
	// ColorizePrompt and ColorizeNegativePrompt steer the colorization
	// pass; empty values use the built-in defaults.
	ColorizePrompt         string
	ColorizeNegativePrompt string
	// Overwrite allows replacing existing output files.
	Overwrite bool
	// SkipCache bypasses cache lookups (entries are still written).
	SkipCache bool
}

// DefaultOptions returns the stage defaults.
func DefaultOptions() Options {
	return Options{
		Scale:             2.0,
		Upscaler:          "R-ESRGAN 4x+ Anime6B",
		DenoisingStrength: 0.5,
		Steps:             20,
		CFGScale:          7.0,
		Sampler:           "DPM++ 2M",
		AutoColorize:      true,
		ColorizePrompt:    defaultColorizePrompt,
	}
}

// Validate rejects out-of-range options before any network or disk work.
func (o Options) Validate() error {
	if o.Scale < 1.0 || o.Scale > 4.0 {
		return fmt.Errorf("scale must be between 1.0 and 4.0, got %g", o.Scale)
	}
	if o.DenoisingStrength < 0.0 || o.DenoisingStrength > 1.0 {
		return fmt.Errorf("denoising strength must be between 0.0 and 1.0, got %g", o.DenoisingStrength)
	}
	if o.Steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", o.Steps)
	}
	if o.Upscaler == "" {
		return fmt.Errorf("upscaler name must not be empty")
	}
	return nil
}
