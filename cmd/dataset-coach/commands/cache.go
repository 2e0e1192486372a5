package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the processing cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := c.openStore()
			if store == nil {
				cmd.Println("cache disabled")
				return nil
			}
			cmd.Printf("%s: %d entries\n", c.cacheFile, store.Len())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := c.openStore()
			if store == nil {
				cmd.Println("cache disabled")
				return nil
			}
			n := store.Len()
			store.Clear()
			cmd.Printf("cleared %d entries\n", n)
			return nil
		},
	})

	var maxAgeDays int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove entries older than a threshold, deleting their outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := c.openStore()
			if store == nil {
				cmd.Println("cache disabled")
				return nil
			}
			removed := store.Cleanup(maxAgeDays)
			cmd.Printf("removed %d entries older than %d days\n", removed, maxAgeDays)
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 30, "age threshold in days")
	cmd.AddCommand(cleanupCmd)

	return cmd
}
