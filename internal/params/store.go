package params

import (
	"sync"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/date"
)

// Defaults seeds a Store
type Defaults struct {
	PortfolioID contracts.PortfolioID // sentinel used until a known portfolio is chosen
	Start       date.Date             // default start, also the earliest selectable start
	Today       func() date.Date      // nil means date.Today
}

// Bounds is the selectable range of each date input
type Bounds struct {
	StartMin date.Date `json:"start_min"`
	StartMax date.Date `json:"start_max"`
	EndMin   date.Date `json:"end_min"`
	EndMax   date.Date `json:"end_max"`
}

// Store holds the parameter tuple and is its only writer
// ⭐ SSOT: 포트폴리오/시작일/종료일 상태는 여기서만 변경
type Store struct {
	mu       sync.RWMutex
	current  contracts.Params
	defaults Defaults

	portfolios []contracts.Portfolio
	loaded     bool

	// notifyMu serialises mutation+notification so subscribers see tuples in mutation order
	notifyMu    sync.Mutex
	subscribers []func(contracts.Params)
}

// NewStore creates a store at the default tuple {sentinel, default start, today}
func NewStore(d Defaults) *Store {
	if d.Today == nil {
		d.Today = date.Today
	}

	today := d.Today()
	start := d.Start
	if start.IsZero() || start.After(today) {
		start = today
	}

	return NewStoreAt(d, contracts.Params{
		PortfolioID: d.PortfolioID,
		Start:       start,
		End:         today,
	})
}

// NewStoreAt creates a store starting from an explicit tuple
func NewStoreAt(d Defaults, initial contracts.Params) *Store {
	if d.Today == nil {
		d.Today = date.Today
	}
	return &Store{current: initial, defaults: d}
}

// Subscribe registers fn to receive every new tuple
// Subscribers run synchronously and must not call the store's mutators.
func (s *Store) Subscribe(fn func(contracts.Params)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Current returns the current tuple
func (s *Store) Current() contracts.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Bounds returns the date inputs' selectable ranges for the current tuple
func (s *Store) Bounds() Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundsLocked()
}

func (s *Store) boundsLocked() Bounds {
	startMin := s.defaults.Start
	if !startMin.IsZero() && s.current.End.Before(startMin) {
		startMin = s.current.End
	}

	return Bounds{
		StartMin: startMin,
		StartMax: s.current.End,
		EndMin:   s.current.Start,
		EndMax:   s.defaults.Today(),
	}
}

// Portfolios returns the known portfolios; empty until SetKnownPortfolios
func (s *Store) Portfolios() []contracts.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolios
}

// Known reports whether id is a loaded portfolio; before loading every id is accepted
func (s *Store) Known(id contracts.PortfolioID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.knownLocked(id)
}

func (s *Store) knownLocked(id contracts.PortfolioID) bool {
	if !s.loaded {
		return true
	}
	_, ok := contracts.FindPortfolio(s.portfolios, id)
	return ok
}

// SetKnownPortfolios records the portfolio list. A current id that is not in the list
// falls back to the sentinel.
func (s *Store) SetKnownPortfolios(list []contracts.Portfolio) contracts.Params {
	return s.mutate(func() {
		s.portfolios = append([]contracts.Portfolio(nil), list...)
		s.loaded = true
		if !s.knownLocked(s.current.PortfolioID) {
			s.current.PortfolioID = s.defaults.PortfolioID
		}
	})
}

// SetPortfolio replaces the portfolio id; unknown ids fall back to the sentinel once
// the list has loaded
func (s *Store) SetPortfolio(id contracts.PortfolioID) contracts.Params {
	return s.mutate(func() {
		if !s.knownLocked(id) {
			id = s.defaults.PortfolioID
		}
		s.current.PortfolioID = id
	})
}

// SetStart replaces the start date, clamped to [StartMin, StartMax]
func (s *Store) SetStart(d date.Date) contracts.Params {
	return s.mutate(func() {
		b := s.boundsLocked()
		s.current.Start = d.Clamp(b.StartMin, b.StartMax)
	})
}

// SetEnd replaces the end date, clamped to [EndMin, EndMax]
func (s *Store) SetEnd(d date.Date) contracts.Params {
	return s.mutate(func() {
		b := s.boundsLocked()
		s.current.End = d.Clamp(b.EndMin, b.EndMax)
	})
}

// mutate applies fn and notifies subscribers when the tuple changed
func (s *Store) mutate(fn func()) contracts.Params {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	before := s.current
	fn()
	after := s.current
	s.mu.Unlock()

	if after != before {
		for _, sub := range s.subscribers {
			sub(after)
		}
	}
	return after
}
