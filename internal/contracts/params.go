package contracts

import (
	"fmt"

	"github.com/wonny/portfolioviz/pkg/date"
)

// Params is the query tuple shared by both series fetches
// ⭐ SSOT: Start <= End 는 params.Store 가 보장
type Params struct {
	PortfolioID PortfolioID `json:"portfolio_id"`
	Start       date.Date   `json:"start"`
	End         date.Date   `json:"end"`
}

// Validate checks the date ordering invariant
func (p Params) Validate() error {
	if p.PortfolioID == "" {
		return fmt.Errorf("portfolio id is required")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if p.Start.After(p.End) {
		return fmt.Errorf("start %s is after end %s", p.Start, p.End)
	}
	return nil
}

// String renders the tuple for logs
func (p Params) String() string {
	return fmt.Sprintf("%s[%s..%s]", p.PortfolioID, p.Start, p.End)
}
