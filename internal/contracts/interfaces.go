package contracts

import (
	"context"
)

// SeriesFetcher retrieves both series for a parameter tuple
// ⭐ SSOT: pipeline.Orchestrator 가 사용하는 원격 조회 인터페이스
type SeriesFetcher interface {
	FetchValues(ctx context.Context, p Params) ([]ValuePoint, error)
	FetchWeights(ctx context.Context, p Params) ([]WeightRecord, error)
}

// PortfolioLister retrieves the portfolio list
type PortfolioLister interface {
	ListPortfolios(ctx context.Context) ([]Portfolio, error)
}
