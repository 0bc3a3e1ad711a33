package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "백엔드 연결 확인",
	Long: `Checks that the portfolio backend answers GET /ping/ and lists its portfolios.

Example:
  go run ./cmd/portfolioviz ping
  go run ./cmd/portfolioviz ping --backend http://localhost:8000`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Backend: %s\n", a.client.BaseURL())

	if err := a.client.Ping(ctx); err != nil {
		fmt.Println("❌ unreachable")
		return err
	}
	fmt.Println("✅ reachable")

	portfolios, err := a.client.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}

	fmt.Printf("\nPortfolios (%d):\n", len(portfolios))
	for _, p := range portfolios {
		fmt.Printf("  %-6s %s\n", p.ID, p.Name)
	}
	return nil
}
