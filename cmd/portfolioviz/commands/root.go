package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	backendURL string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "portfolioviz",
	Short: "Portfolio Visualization - 포트폴리오 가치/비중 대시보드",
	Long: `Portfolio Visualization CLI

Serves a dashboard of a portfolio's market value and asset weights
over a date range, backed by the remote portfolio backend.

Usage:
  go run ./cmd/portfolioviz [command]

Examples:
  go run ./cmd/portfolioviz serve
  go run ./cmd/portfolioviz snapshot --portfolio 2 --from 2022-01-01 --to 2022-06-30
  go run ./cmd/portfolioviz ping`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "portfolio backend URL (default from BACKEND_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
