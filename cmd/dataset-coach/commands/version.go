package commands

import (
	"github.com/spf13/cobra"

	"dataset-coach/internal/startup"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(startup.GetBuildInfo().String())
		},
	}
}
