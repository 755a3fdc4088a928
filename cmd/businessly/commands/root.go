// Package commands implements the businessly CLI.
package commands

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "businessly",
		Short: "Telegram bots answered by GigaChat with handoff to the business owner",
		Long: `Businessly connects a business owner's Telegram bots to GigaChat. Customers get
automatic answers until the assistant is unsure, then the owner takes over.

Examples:
  businessly migrate
  businessly serve
  businessly worker`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newHealthcheckCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a TOML config file")

	return rootCmd
}
