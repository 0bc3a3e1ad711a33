package dashboard

import (
	"github.com/wonny/portfolioviz/internal/chart"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/internal/params"
	"github.com/wonny/portfolioviz/internal/pipeline"
	"github.com/wonny/portfolioviz/internal/series"
)

// View is everything the page needs to draw the dashboard
type View struct {
	Generation uint64                `json:"generation"`
	Params     contracts.Params      `json:"params"`
	Bounds     params.Bounds         `json:"bounds"`
	Portfolios []contracts.Portfolio `json:"portfolios"`

	ValueTitle   string          `json:"value_title"`
	ValueChart   chart.LineChart `json:"value_chart"`
	ValueStatus  pipeline.Status `json:"value_status"`
	WeightTitle  string          `json:"weight_title"`
	WeightChart  chart.AreaChart `json:"weight_chart"`
	WeightStatus pipeline.Status `json:"weight_status"`

	// DroppedKeys lists weight keys absent from the first record and therefore not drawn
	DroppedKeys []string `json:"dropped_keys,omitempty"`
}

// Sink receives every new View of a session
type Sink func(View)

// buildView re-runs normalisation and both bindings over an orchestrator snapshot
func buildView(store *params.Store, snap pipeline.Snapshot, opts chart.Options) View {
	normalized := series.Normalize(snap.Weights.Records)

	portfolios := store.Portfolios()
	if portfolios == nil {
		portfolios = []contracts.Portfolio{}
	}

	return View{
		Generation: snap.Current.Generation,
		Params:     snap.Current.Params,
		Bounds:     store.Bounds(),
		Portfolios: portfolios,

		ValueTitle:   chart.ValueTitle(snap.Current.Params.PortfolioID),
		ValueChart:   chart.BindValues(snap.Values.Points, opts),
		ValueStatus:  snap.Values.Status,
		WeightTitle:  chart.WeightTitle,
		WeightChart:  chart.BindWeights(normalized, opts),
		WeightStatus: snap.Weights.Status,

		DroppedKeys: normalized.Dropped,
	}
}
