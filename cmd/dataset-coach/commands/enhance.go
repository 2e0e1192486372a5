package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dataset-coach/internal/database"
	"dataset-coach/internal/enhance"
)

// enhanceFlags maps CLI flags onto enhance.Options, shared by the enhance
// and run commands.
type enhanceFlags struct {
	scale            float64
	upscaler         string
	denoising        float64
	steps            int
	cfgScale         float64
	sampler          string
	prompt           string
	negative         string
	noColorize       bool
	colorizePrompt   string
	colorizeNegative string
	overwrite        bool
	forceReprocess   bool
}

func (f *enhanceFlags) register(fs *pflag.FlagSet) {
	defaults := enhance.DefaultOptions()
	fs.Float64Var(&f.scale, "scale", defaults.Scale, "upscaling factor (1.0-4.0)")
	fs.StringVar(&f.upscaler, "upscaler", defaults.Upscaler, "upscaler model name")
	fs.Float64Var(&f.denoising, "denoising", defaults.DenoisingStrength, "denoising strength (0.0-1.0)")
	fs.IntVar(&f.steps, "steps", defaults.Steps, "sampling steps")
	fs.Float64Var(&f.cfgScale, "cfg-scale", defaults.CFGScale, "guidance scale")
	fs.StringVar(&f.sampler, "sampler", defaults.Sampler, "sampler name")
	fs.StringVar(&f.prompt, "prompt", "", "enhancement prompt")
	fs.StringVar(&f.negative, "negative-prompt", "", "negative prompt")
	fs.BoolVar(&f.noColorize, "no-colorize", false, "skip colorization of monochrome images")
	fs.StringVar(&f.colorizePrompt, "colorize-prompt", defaults.ColorizePrompt, "prompt for the colorization pass")
	fs.StringVar(&f.colorizeNegative, "colorize-negative-prompt", "", "negative prompt for the colorization pass")
	fs.BoolVar(&f.overwrite, "overwrite", false, "replace existing output files")
	fs.BoolVar(&f.forceReprocess, "force-reprocess", false, "bypass cache lookups for this run")
}

func (f *enhanceFlags) options() enhance.Options {
	return enhance.Options{
		Scale:                  f.scale,
		Upscaler:               f.upscaler,
		DenoisingStrength:      f.denoising,
		Steps:                  f.steps,
		CFGScale:               f.cfgScale,
		Sampler:                f.sampler,
		Prompt:                 f.prompt,
		NegativePrompt:         f.negative,
		AutoColorize:           !f.noColorize,
		ColorizePrompt:         f.colorizePrompt,
		ColorizeNegativePrompt: f.colorizeNegative,
		Overwrite:              f.overwrite,
		SkipCache:              f.forceReprocess,
	}
}

func (c *CLI) newEnhanceCmd() *cobra.Command {
	var (
		flags     enhanceFlags
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "enhance INPUT_DIR",
		Short: "Upscale (and optionally colorize) images via the generation service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Options are validated before any disk or manifest work.
			e, err := enhance.New(c.newClient(), c.openStore(), flags.options())
			if err != nil {
				return err
			}

			paths, err := scanImages(args[0])
			if err != nil {
				return err
			}

			manifest, err := c.openManifest(ctx)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}

			results := e.UpscaleBatch(ctx, paths, outputDir)
			ok, failed, duplicates := recordEnhanceResults(ctx, manifest, paths, results)

			cmd.Printf("enhance: %s\n", enhanceSummary(ok, failed, duplicates))
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for enhanced images (default: next to each image)")
	return cmd
}

// recordEnhanceResults counts outcomes and writes them into the manifest.
// Results are aligned with sources by index. A source repeated within one
// batch is only processed once; later occurrences are counted as
// duplicates, not failures, and get no manifest record of their own.
func recordEnhanceResults(ctx context.Context, m *database.Manifest, sources []string, results []enhance.Result) (ok, failed, duplicates int) {
	seen := make(map[string]bool, len(sources))
	for i, res := range results {
		key, err := filepath.Abs(sources[i])
		if err != nil {
			key = sources[i]
		}
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true

		if res.Failed() {
			failed++
			if m != nil {
				m.RecordResult(ctx, database.Record{
					SourcePath: sources[i],
					Stage:      "enhance",
					Status:     "failed",
				})
			}
			continue
		}
		ok++
		if m != nil {
			m.RecordResult(ctx, database.Record{
				SourcePath: sources[i],
				Stage:      "enhance",
				OutputPath: res.Path,
				Status:     "ok",
			})
		}
	}
	return ok, failed, duplicates
}

// enhanceSummary formats the per-run enhance counts, mentioning duplicates
// only when any were skipped.
func enhanceSummary(ok, failed, duplicates int) string {
	s := fmt.Sprintf("%d enhanced, %d failed", ok, failed)
	if duplicates > 0 {
		s += fmt.Sprintf(", %d duplicates skipped", duplicates)
	}
	return s
}
