package dashboard

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolioviz/internal/backend"
	"github.com/wonny/portfolioviz/internal/backend/backendtest"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/config"
	"github.com/wonny/portfolioviz/pkg/date"
	"github.com/wonny/portfolioviz/pkg/httputil"
	"github.com/wonny/portfolioviz/pkg/logger"
)

func testConfig() config.DashboardConfig {
	return config.DashboardConfig{
		DefaultPortfolioID: "1",
		DefaultStartDate:   "2022-01-01",
		TickInterval:       32,
		ValueDomainMin:     math.NaN(),
		ValueDomainMax:     math.NaN(),
		ValueMargin:        0.05,
		WeightEpsilon:      0.01,
		SessionIdleTTL:     30 * time.Minute,
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seeded() *backendtest.Server {
	srv := backendtest.New()
	srv.AddPortfolio(
		contracts.Portfolio{ID: "1", Name: "portafolio 1"},
		[]contracts.ValuePoint{
			{Date: date.MustParse("2022-01-03"), Amount: 1000},
			{Date: date.MustParse("2022-01-04"), Amount: 1100},
		},
		[]contracts.WeightRecord{
			contracts.NewWeightRecord(date.MustParse("2022-01-03"), "A", 0.6, "B", 0.4),
			contracts.NewWeightRecord(date.MustParse("2022-01-04"), "A", 0.5, "B", 0.4, "C", 0.1),
		},
	)
	srv.AddPortfolio(
		contracts.Portfolio{ID: "2", Name: "portafolio 2"},
		[]contracts.ValuePoint{{Date: date.MustParse("2022-01-03"), Amount: 50}},
		[]contracts.WeightRecord{contracts.NewWeightRecord(date.MustParse("2022-01-03"), "X", 1.0)},
	)
	return srv
}

func newTestManager(t *testing.T, baseURL string, clk *clock) *Manager {
	t.Helper()

	log := logger.NewNop()
	client := backend.NewClient(baseURL, httputil.New(config.BackendConfig{Timeout: 5 * time.Second}, log), log)

	deps := Deps{
		Fetcher: client,
		Lister:  client,
		Config:  testConfig(),
		Logger:  log,
		Today:   func() date.Date { return date.MustParse("2022-06-30") },
	}
	if clk != nil {
		deps.Now = clk.Now
	}

	m, err := NewManager(deps)
	require.NoError(t, err)
	return m
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) sink(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func TestNewManager_BadStartDate(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultStartDate = "01/01/2022"

	_, err := NewManager(Deps{Config: cfg, Logger: logger.NewNop()})
	assert.ErrorIs(t, err, date.ErrFormat)
}

func TestOpen_InitialView(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	rec := &viewRecorder{}

	s := m.Open(context.Background(), rec.sink)
	defer m.Close(s.ID())
	s.Wait()

	v := rec.last()
	assert.Equal(t, contracts.PortfolioID("1"), v.Params.PortfolioID)
	assert.Equal(t, "2022-01-01", v.Params.Start.String())
	assert.Equal(t, "2022-06-30", v.Params.End.String())
	assert.Equal(t, "Market value of Portfolio 1", v.ValueTitle)
	require.Len(t, v.ValueChart.Points, 2)
	require.Len(t, v.WeightChart.Areas, 2)
	assert.Equal(t, []string{"C"}, v.DroppedKeys)
	assert.Equal(t, 1.01, v.WeightChart.Domain.Max)
	assert.False(t, v.ValueStatus.Loading)
	assert.Equal(t, 1, m.Len())
}

func TestSession_SetFields(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	rec := &viewRecorder{}
	s := m.Open(context.Background(), rec.sink)
	defer m.Close(s.ID())

	require.NoError(t, s.Set(FieldPortfolio, "2"))
	require.NoError(t, s.Set(FieldStart, "2022-01-03"))
	require.NoError(t, s.Set(FieldEnd, "2022-01-03"))
	s.Wait()

	v := s.View()
	assert.Equal(t, "2[2022-01-03..2022-01-03]", v.Params.String())
	require.Len(t, v.ValueChart.Points, 1)
	assert.Equal(t, 50.0, v.ValueChart.Points[0].Y)
	assert.Equal(t, "X", v.WeightChart.Areas[0].Key)
	assert.Equal(t, v, rec.last(), "the last published view is the current view")

	assert.ErrorIs(t, s.Set(FieldStart, "yesterday"), date.ErrFormat)
	assert.ErrorIs(t, s.Set("colour", "red"), ErrUnknownField)
}

func TestSession_ClampedChangeResendsView(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	rec := &viewRecorder{}
	s := m.Open(context.Background(), rec.sink)
	defer m.Close(s.ID())
	s.Wait()

	rec.mu.Lock()
	before := len(rec.views)
	rec.mu.Unlock()

	// end is already today; a later date clamps back to it
	require.NoError(t, s.Set(FieldEnd, "2030-01-01"))

	rec.mu.Lock()
	after := len(rec.views)
	rec.mu.Unlock()
	assert.Equal(t, before+1, after)
	assert.Equal(t, "2022-06-30", rec.last().Params.End.String())
}

func TestSession_BackendDownKeepsPreviousData(t *testing.T) {
	srv := seeded()
	m := newTestManager(t, srv.URL, nil)

	s := m.Open(context.Background(), nil)
	defer m.Close(s.ID())
	s.Wait()
	require.Len(t, s.View().ValueChart.Points, 2)

	srv.Close()
	require.NoError(t, s.Set(FieldEnd, "2022-05-31"))
	s.Wait()

	v := s.View()
	assert.Len(t, v.ValueChart.Points, 2)
	assert.NotEmpty(t, v.ValueStatus.Error)
	assert.Equal(t, "2022-05-31", v.Params.End.String())
}

func TestLoadPortfolios(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	s := m.Open(context.Background(), nil)
	defer m.Close(s.ID())
	require.NoError(t, s.Set(FieldPortfolio, "99"))
	s.Wait()

	require.NoError(t, m.LoadPortfolios(context.Background()))
	s.Wait()

	assert.Len(t, m.Portfolios(), 2)
	v := s.View()
	assert.Len(t, v.Portfolios, 2)
	assert.Equal(t, contracts.PortfolioID("1"), v.Params.PortfolioID, "unknown id falls back once the list is loaded")

	other := m.Open(context.Background(), nil)
	defer m.Close(other.ID())
	require.NoError(t, other.Set(FieldPortfolio, "nope"))
	assert.Equal(t, contracts.PortfolioID("1"), other.Store().Current().PortfolioID)
}

func TestLoadPortfolios_Failure(t *testing.T) {
	srv := seeded()
	srv.Break("portfolios")
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	err := m.LoadPortfolios(context.Background())
	assert.True(t, errors.Is(err, contracts.ErrMalformed), "got %v", err)
	assert.Empty(t, m.Portfolios())
}

func TestSweepIdle(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	clk := &clock{now: time.Date(2022, 6, 30, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, srv.URL, clk)

	idle := m.Open(context.Background(), nil)
	active := m.Open(context.Background(), nil)
	idle.Wait()
	active.Wait()

	clk.Advance(20 * time.Minute)
	require.NoError(t, active.Set(FieldPortfolio, "2"))
	clk.Advance(15 * time.Minute)

	assert.Equal(t, 1, m.SweepIdle())
	_, ok := m.Get(idle.ID())
	assert.False(t, ok)
	_, ok = m.Get(active.ID())
	assert.True(t, ok)

	active.Wait()
	m.CloseAll()
	assert.Zero(t, m.Len())
}

func TestClosedSessionStopsPublishing(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	rec := &viewRecorder{}
	s := m.Open(context.Background(), rec.sink)
	s.Wait()

	m.Close(s.ID())
	rec.mu.Lock()
	before := len(rec.views)
	rec.mu.Unlock()

	err := s.Set(FieldPortfolio, "2")
	assert.ErrorIs(t, err, ErrSessionClosed)
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, before, len(rec.views))
}

func TestSweepIdle_SkipsAttachedSessions(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	clk := &clock{now: time.Date(2022, 6, 30, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, srv.URL, clk)
	rec := &viewRecorder{}

	s := m.Open(context.Background(), rec.sink)
	s.Attach()
	s.Wait()

	// a page reading the charts for longer than the idle TTL
	clk.Advance(31 * time.Minute)
	assert.Zero(t, m.SweepIdle())
	_, ok := m.Get(s.ID())
	require.True(t, ok)

	rec.mu.Lock()
	before := len(rec.views)
	rec.mu.Unlock()

	require.NoError(t, s.Set(FieldPortfolio, "2"))
	s.Wait()

	rec.mu.Lock()
	after := len(rec.views)
	rec.mu.Unlock()
	assert.Greater(t, after, before, "control change still re-renders")
	assert.Equal(t, contracts.PortfolioID("2"), rec.last().Params.PortfolioID)

	// once the connection goes away the session ages out normally
	s.Detach()
	assert.Equal(t, clk.Now(), s.LastActive())
	clk.Advance(31 * time.Minute)
	assert.Equal(t, 1, m.SweepIdle())
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	clk := &clock{now: time.Date(2022, 6, 30, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, srv.URL, clk)

	s := m.Open(context.Background(), nil)
	s.Wait()

	clk.Advance(25 * time.Minute)
	s.Touch()
	assert.Equal(t, clk.Now(), s.LastActive())

	clk.Advance(25 * time.Minute)
	assert.Zero(t, m.SweepIdle())
	m.CloseAll()
}

func TestRenderOnce(t *testing.T) {
	srv := seeded()
	defer srv.Close()

	m := newTestManager(t, srv.URL, nil)
	p := contracts.Params{
		PortfolioID: "1",
		Start:       date.MustParse("2022-01-04"),
		End:         date.MustParse("2022-01-04"),
	}

	v, err := m.RenderOnce(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, v.Params)
	require.Len(t, v.ValueChart.Points, 1)
	assert.Equal(t, 1100.0, v.ValueChart.Points[0].Y)
	assert.Equal(t, []string{"A", "B", "C"}, v.WeightChart.Rows[0].Keys)
	assert.Zero(t, m.Len(), "one-shot renders are not registered")

	p.Start = date.MustParse("2022-02-01")
	_, err = m.RenderOnce(context.Background(), p)
	assert.Error(t, err)
}
