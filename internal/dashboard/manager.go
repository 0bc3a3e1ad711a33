package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/portfolioviz/internal/chart"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/internal/params"
	"github.com/wonny/portfolioviz/internal/pipeline"
	"github.com/wonny/portfolioviz/pkg/config"
	"github.com/wonny/portfolioviz/pkg/date"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Deps are the Manager's collaborators
type Deps struct {
	Fetcher contracts.SeriesFetcher
	Lister  contracts.PortfolioLister
	Config  config.DashboardConfig
	Logger  *logger.Logger

	Today func() date.Date // nil means date.Today
	Now   func() time.Time // nil means time.Now
}

// Manager owns every live session and the shared portfolio list
// ⭐ SSOT: 포트폴리오 목록은 프로세스 시작 시 한 번 로드되어 모든 세션이 공유
type Manager struct {
	fetcher  contracts.SeriesFetcher
	lister   contracts.PortfolioLister
	defaults params.Defaults
	opts     chart.Options
	idleTTL  time.Duration
	logger   *logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	sessions   map[string]*Session
	portfolios []contracts.Portfolio
	loaded     bool
}

// NewManager creates a session manager
func NewManager(deps Deps) (*Manager, error) {
	start, err := date.Parse(deps.Config.DefaultStartDate)
	if err != nil {
		return nil, fmt.Errorf("default start date: %w", err)
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Manager{
		fetcher: deps.Fetcher,
		lister:  deps.Lister,
		defaults: params.Defaults{
			PortfolioID: contracts.PortfolioID(deps.Config.DefaultPortfolioID),
			Start:       start,
			Today:       deps.Today,
		},
		opts:     chart.OptionsFromConfig(deps.Config),
		idleTTL:  deps.Config.SessionIdleTTL,
		logger:   deps.Logger.Component("dashboard"),
		now:      deps.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// LoadPortfolios fetches the portfolio list once and shares it with every session.
// On failure the list stays empty and the sentinel id remains usable.
func (m *Manager) LoadPortfolios(ctx context.Context) error {
	list, err := m.lister.ListPortfolios(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load portfolio list, using default portfolio")
		return fmt.Errorf("load portfolios: %w", err)
	}

	m.mu.Lock()
	m.portfolios = list
	m.loaded = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.store.SetKnownPortfolios(list)
	}

	m.logger.WithField("count", len(list)).Info("Portfolio list loaded")
	return nil
}

// Portfolios returns the shared list; empty until LoadPortfolios succeeds
func (m *Manager) Portfolios() []contracts.Portfolio {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.portfolios == nil {
		return []contracts.Portfolio{}
	}
	return m.portfolios
}

// Defaults returns the store defaults new sessions start from
func (m *Manager) Defaults() params.Defaults {
	return m.defaults
}

// NewStore returns a store at the default tuple that knows the shared portfolio list
func (m *Manager) NewStore() *params.Store {
	store := params.NewStore(m.defaults)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.loaded {
		store.SetKnownPortfolios(m.portfolios)
	}
	return store
}

// Open creates a session at the default tuple, registers it and issues the first fetch
func (m *Manager) Open(ctx context.Context, sink Sink) *Session {
	s := newSession(ctx, uuid.NewString(), m.NewStore(), m.fetcher, m.opts, sink, m.logger, m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	loaded, list := m.loaded, m.portfolios
	m.mu.Unlock()

	// the list may have loaded since NewStore
	if loaded {
		s.store.SetKnownPortfolios(list)
	}

	s.logger.Debug("Session opened")
	s.Start()
	return s
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Close closes and forgets a session
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
		s.logger.Debug("Session closed")
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle closes detached sessions idle for longer than the configured TTL
func (m *Manager) SweepIdle() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	idle := make([]*Session, 0)
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// CloseAll closes every session; used on shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// RenderOnce issues p on a throwaway session, waits for both fetches to settle and
// returns the resulting view
func (m *Manager) RenderOnce(ctx context.Context, p contracts.Params) (View, error) {
	if err := p.Validate(); err != nil {
		return View{}, err
	}

	store := params.NewStoreAt(m.defaults, p)
	m.mu.RLock()
	if m.loaded {
		store.SetKnownPortfolios(m.portfolios)
	}
	m.mu.RUnlock()

	orch := pipeline.New(ctx, m.fetcher, m.logger)
	defer orch.Close()

	orch.Issue(store.Current())
	orch.Wait()

	return buildView(store, orch.Snapshot(), m.opts), nil
}
