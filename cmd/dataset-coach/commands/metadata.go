package commands

import (
	"github.com/spf13/cobra"

	"dataset-coach/internal/metadata"
)

func (c *CLI) newMetadataCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "metadata INPUT_DIR",
		Short: "Extract per-image metadata documents keyed by content hash",
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

			dir := outputDir
			if dir == "" {
				dir = args[0]
			}

			e := metadata.New(c.openStore())
			summary, err := e.Run(paths, dir)
			if err != nil {
				return err
			}

			recordOutcomes(ctx, manifest, "metadata", summary.Documents, summary.FailedPaths)

			cmd.Printf("metadata: %d extracted, %d reused, %d failed\n",
				summary.Extracted, summary.Reused, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for the metadata subdirectory (default: input dir)")
	return cmd
}
