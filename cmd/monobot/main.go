// Command monobot runs the Monobank daily report bot.
package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/monoreport-bot-go/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "monobot",
	Short: "Telegram bot that sends daily Monobank spending reports",
	Long: `monobot keeps a per-user Monobank token, lets users pick accounts and a
report time from Telegram menus, and sends a spending summary by category
every day at that time.

Configuration comes from the environment, optionally seeded from a .env
file in the working directory or the file given with --config.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.env, .toml, .yaml); defaults to ./.env when present")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func main() {
	Execute()
}
