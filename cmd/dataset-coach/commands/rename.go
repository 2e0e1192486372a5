package commands

import (
	"github.com/spf13/cobra"

	"dataset-coach/internal/rename"
)

func (c *CLI) newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename INPUT_DIR OUTPUT_DIR",
		Short: "Copy images to content-hash names, deduplicating identical files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			manifest, err := c.openManifest(ctx)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}

			r := rename.New(c.openStore(), c.workerCount)
			summary, err := r.Run(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			recordOutcomes(ctx, manifest, "rename", summary.Renamed, summary.FailedPaths)

			cmd.Printf("rename: %d copied, %d reused, %d failed, %d unique outputs\n",
				summary.Copied, summary.Reused, summary.Failed, len(summary.Outputs))
			return nil
		},
	}
}
