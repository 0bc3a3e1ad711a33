package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PortfolioID is the backend's opaque portfolio identifier
// The backend encodes it as a JSON number; URLs and the page use its string form.
type PortfolioID string

// UnmarshalJSON accepts a JSON number or string
func (id *PortfolioID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = PortfolioID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: portfolio id %s", ErrMalformed, string(b))
	}
	*id = PortfolioID(n.String())
	return nil
}

// Portfolio is a named collection of assets tracked by the backend
// ⭐ SSOT: 시작 시 한 번 로드된 후 읽기 전용
type Portfolio struct {
	ID   PortfolioID `json:"id"`
	Name string      `json:"name"`
}

// FindPortfolio looks up a portfolio by identifier
func FindPortfolio(portfolios []Portfolio, id PortfolioID) (Portfolio, bool) {
	for _, p := range portfolios {
		if p.ID == id {
			return p, true
		}
	}
	return Portfolio{}, false
}
