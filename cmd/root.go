package cmd

import (
	"github.com/spf13/cobra"

	"lecture-avatar/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(embed(config))
	return rootCmd
}
