package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"dataset-coach/internal/describe"
	"dataset-coach/internal/enhance"
	"dataset-coach/internal/metadata"
	"dataset-coach/internal/rename"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var (
		flags        enhanceFlags
		skipDescribe bool
		skipEnhance  bool
		model        string
	)

	cmd := &cobra.Command{
		Use:   "run INPUT_DIR OUTPUT_DIR",
		Short: "Run the full pipeline: rename, metadata, describe, enhance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inputDir, outputDir := args[0], args[1]

			store := c.openStore()
			manifest, err := c.openManifest(ctx)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}

			// Enhancer options are validated before any work happens.
			var enhancer *enhance.Enhancer
			if !skipEnhance {
				enhancer, err = enhance.New(c.newClient(), store, flags.options())
				if err != nil {
					return err
				}
			}

			renamer := rename.New(store, c.workerCount)
			renameSummary, err := renamer.Run(ctx, inputDir, outputDir)
			if err != nil {
				return err
			}
			recordOutcomes(ctx, manifest, "rename", renameSummary.Renamed, renameSummary.FailedPaths)
			cmd.Printf("rename:   %d copied, %d reused, %d failed\n",
				renameSummary.Copied, renameSummary.Reused, renameSummary.Failed)

			images := renameSummary.Outputs

			metaSummary, err := metadata.New(store).Run(images, outputDir)
			if err != nil {
				return err
			}
			recordOutcomes(ctx, manifest, "metadata", metaSummary.Documents, metaSummary.FailedPaths)
			cmd.Printf("metadata: %d extracted, %d reused, %d failed\n",
				metaSummary.Extracted, metaSummary.Reused, metaSummary.Failed)

			if !skipDescribe {
				d := describe.NewInterrogateDescriber(c.newClient(), model)
				g := describe.NewGenerator(d, store, flags.overwrite)
				descSummary, err := g.Run(ctx, images, "")
				if err != nil {
					return err
				}
				recordOutcomes(ctx, manifest, "describe", descSummary.Descriptions, descSummary.FailedPaths)
				cmd.Printf("describe: %d described, %d reused, %d failed\n",
					descSummary.Described, descSummary.Reused, descSummary.Failed)
			}

			if !skipEnhance {
				enhancedDir := filepath.Join(outputDir, "enhanced")
				results := enhancer.UpscaleBatch(ctx, images, enhancedDir)
				ok, failed, duplicates := recordEnhanceResults(ctx, manifest, images, results)
				cmd.Printf("enhance:  %s\n", enhanceSummary(ok, failed, duplicates))
			}

			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&skipDescribe, "skip-describe", false, "skip the description stage")
	cmd.Flags().BoolVar(&skipEnhance, "skip-enhance", false, "skip the enhancement stage")
	cmd.Flags().StringVar(&model, "model", "clip", "interrogation model for descriptions")
	return cmd
}
