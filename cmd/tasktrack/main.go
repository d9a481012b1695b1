package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tasktrack",
		Short: "Personal task tracker with an HTTP API and a Telegram bot.",
		Long: `tasktrack keeps an ordered, tagged task list per user.
It serves a JSON API, and a Telegram bot with scheduled summaries when TELEGRAM_TOKEN is set.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
