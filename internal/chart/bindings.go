package chart

import (
	"math"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/internal/series"
	"github.com/wonny/portfolioviz/pkg/config"
)

const (
	// DefaultTickInterval shows one x tick every 32 points
	DefaultTickInterval = 32
	// DefaultYTickCount is the value chart's y tick count
	DefaultYTickCount = 10
	DefaultMargin     = 0.05
	DefaultEpsilon    = 0.01
)

// Options is the chart display policy
type Options struct {
	TickInterval int
	YTickCount   int

	// FixedDomain overrides the data-derived value domain when set
	FixedDomain *Domain
	Margin      float64

	Epsilon float64
}

// DefaultOptions returns the built-in display policy
func DefaultOptions() Options {
	return Options{
		TickInterval: DefaultTickInterval,
		YTickCount:   DefaultYTickCount,
		Margin:       DefaultMargin,
		Epsilon:      DefaultEpsilon,
	}
}

// OptionsFromConfig builds Options from the dashboard configuration
func OptionsFromConfig(cfg config.DashboardConfig) Options {
	opts := DefaultOptions()
	if cfg.TickInterval > 0 {
		opts.TickInterval = cfg.TickInterval
	}
	opts.Margin = cfg.ValueMargin
	opts.Epsilon = cfg.WeightEpsilon
	if cfg.HasFixedValueDomain() {
		opts.FixedDomain = &Domain{Min: cfg.ValueDomainMin, Max: cfg.ValueDomainMax}
	}
	return opts
}

// Domain is a y-axis range
type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Tick is one labelled x position
type Tick struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// LinePoint is one x/y pair of the value chart
type LinePoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// LineChart describes the portfolio value chart
type LineChart struct {
	Points     []LinePoint `json:"points"`
	Ticks      []Tick      `json:"ticks"`
	Domain     *Domain     `json:"domain"` // nil when there is nothing to draw
	YTickCount int         `json:"y_tick_count"`
}

// Area is one stacked layer of the weight chart
type Area struct {
	Key     string `json:"key"`
	Color   string `json:"color"`
	StackID string `json:"stack_id"`
}

// AreaChart describes the stacked weight chart
type AreaChart struct {
	Rows   []contracts.WeightRecord `json:"rows"`
	Areas  []Area                   `json:"areas"`
	Ticks  []Tick                   `json:"ticks"`
	Domain Domain                   `json:"domain"`
}

// weightStack is the single stack all weight areas share
const weightStack = "1"

// FormatTick renders an ISO date as "MM - YY"; other input is returned unchanged
func FormatTick(v string) string {
	if len(v) != 10 || v[4] != '-' || v[7] != '-' {
		return v
	}
	for _, i := range []int{0, 1, 2, 3, 5, 6, 8, 9} {
		if v[i] < '0' || v[i] > '9' {
			return v
		}
	}
	return v[5:7] + " - " + v[2:4]
}

// Ticks picks every interval-th x value starting at the first
func Ticks(xs []string, interval int) []Tick {
	if interval < 1 {
		interval = DefaultTickInterval
	}

	ticks := make([]Tick, 0, len(xs)/interval+1)
	for i := 0; i < len(xs); i += interval {
		ticks = append(ticks, Tick{Index: i, Value: xs[i], Label: FormatTick(xs[i])})
	}
	return ticks
}

// ValueDomain returns [min, max] of ys widened by margin; nil for no data
func ValueDomain(ys []float64, margin float64) *Domain {
	if len(ys) == 0 {
		return nil
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	if lo > hi {
		return nil
	}

	if lo == hi {
		// 단일 값: 위아래로 1씩 벌림
		return &Domain{Min: lo - 1, Max: hi + 1}
	}

	pad := (hi - lo) * margin
	return &Domain{Min: lo - pad, Max: hi + pad}
}

// WeightDomain is [0, 1+epsilon] so a full stack never touches the top edge
func WeightDomain(epsilon float64) Domain {
	return Domain{Min: 0, Max: 1 + epsilon}
}

// BindValues projects the value series onto the line chart
func BindValues(points []contracts.ValuePoint, opts Options) LineChart {
	xs := make([]string, len(points))
	ys := make([]float64, len(points))
	out := LineChart{
		Points:     make([]LinePoint, len(points)),
		YTickCount: opts.YTickCount,
	}
	if out.YTickCount <= 0 {
		out.YTickCount = DefaultYTickCount
	}

	for i, p := range points {
		xs[i] = p.Date.String()
		ys[i] = p.Amount
		out.Points[i] = LinePoint{X: xs[i], Y: p.Amount}
	}
	out.Ticks = Ticks(xs, opts.TickInterval)

	if opts.FixedDomain != nil {
		d := *opts.FixedDomain
		out.Domain = &d
	} else {
		out.Domain = ValueDomain(ys, opts.Margin)
	}
	return out
}

// BindWeights projects the normalised weight series onto the stacked area chart
func BindWeights(n series.Normalized, opts Options) AreaChart {
	xs := make([]string, len(n.Rows))
	for i, r := range n.Rows {
		xs[i] = r.Date.String()
	}

	areas := make([]Area, 0, len(n.Keys))
	for _, k := range n.Keys {
		color, ok := n.Colors[k]
		if !ok {
			color = series.ColorFor(k)
		}
		areas = append(areas, Area{Key: k, Color: color, StackID: weightStack})
	}

	rows := n.Rows
	if rows == nil {
		rows = []contracts.WeightRecord{}
	}

	return AreaChart{
		Rows:   rows,
		Areas:  areas,
		Ticks:  Ticks(xs, opts.TickInterval),
		Domain: WeightDomain(opts.Epsilon),
	}
}

// ValueTitle is the value chart heading; an empty id shows the sentinel portfolio
func ValueTitle(id contracts.PortfolioID) string {
	if id == "" {
		id = "1"
	}
	return "Market value of Portfolio " + string(id)
}

// WeightTitle is the weight chart heading
const WeightTitle = "Distribution by weights"
