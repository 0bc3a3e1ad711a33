package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/date"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "한 번 조회한 대시보드 뷰를 JSON 으로 출력",
	Long: `Fetches both series for one parameter tuple, runs the normaliser and the
chart bindings, and prints the resulting view as JSON.

Example:
  go run ./cmd/portfolioviz snapshot
  go run ./cmd/portfolioviz snapshot --portfolio 2 --from 2022-01-01 --to 2022-06-30`,
	RunE: runSnapshot,
}

var (
	snapshotPortfolio string
	snapshotFrom      string
	snapshotTo        string
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotPortfolio, "portfolio", "", "portfolio id (default from DEFAULT_PORTFOLIO_ID)")
	snapshotCmd.Flags().StringVar(&snapshotFrom, "from", "", "start date YYYY-MM-DD (default from DEFAULT_START_DATE)")
	snapshotCmd.Flags().StringVar(&snapshotTo, "to", "", "end date YYYY-MM-DD (default today)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	defaults := a.manager.Defaults()
	p := contracts.Params{
		PortfolioID: defaults.PortfolioID,
		Start:       defaults.Start,
		End:         date.Today(),
	}
	if snapshotPortfolio != "" {
		p.PortfolioID = contracts.PortfolioID(snapshotPortfolio)
	}
	if snapshotFrom != "" {
		if p.Start, err = date.Parse(snapshotFrom); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if snapshotTo != "" {
		if p.End, err = date.Parse(snapshotTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	_ = a.manager.LoadPortfolios(ctx)

	view, err := a.manager.RenderOnce(ctx, p)
	if err != nil {
		return fmt.Errorf("render %s: %w", p, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
