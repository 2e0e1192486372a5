package commands

import (
	"github.com/spf13/cobra"

	"dataset-coach/internal/describe"
)

func (c *CLI) newDescribeCmd() *cobra.Command {
	var (
		outputDir string
		model     string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "describe INPUT_DIR",
		Short: "Generate a caption file for every image via the generation service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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

			d := describe.NewInterrogateDescriber(c.newClient(), model)
			g := describe.NewGenerator(d, c.openStore(), overwrite)
			summary, err := g.Run(ctx, paths, outputDir)
			if err != nil {
				return err
			}

			recordOutcomes(ctx, manifest, "describe", summary.Descriptions, summary.FailedPaths)

			cmd.Printf("describe: %d described, %d reused, %d failed\n",
				summary.Described, summary.Reused, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for description files (default: next to each image)")
	cmd.Flags().StringVar(&model, "model", "clip", "interrogation model")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate existing description files")
	return cmd
}
