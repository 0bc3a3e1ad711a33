package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/portfolioviz/internal/chart"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/internal/params"
	"github.com/wonny/portfolioviz/internal/pipeline"
	"github.com/wonny/portfolioviz/pkg/date"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Field names accepted by Session.Set
const (
	FieldPortfolio = "portfolio"
	FieldStart     = "start"
	FieldEnd       = "end"
)

var (
	// ErrUnknownField is returned by Set for a field other than portfolio, start or end
	ErrUnknownField = errors.New("unknown field")
	// ErrSessionClosed is returned by Set once the session has been closed or swept
	ErrSessionClosed = errors.New("session closed")
)

// Session is one connected page: its parameter store, its orchestrator and its sink
// ⭐ SSOT: store 변경 → orchestrator.Issue → 정규화/바인딩 → sink
type Session struct {
	id     string
	store  *params.Store
	orch   *pipeline.Orchestrator
	opts   chart.Options
	sink   Sink
	logger *logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	lastActive time.Time
	attached   int
	closed     bool
}

func newSession(ctx context.Context, id string, store *params.Store, fetcher contracts.SeriesFetcher, opts chart.Options, sink Sink, log *logger.Logger, now func() time.Time) *Session {
	s := &Session{
		id:         id,
		store:      store,
		opts:       opts,
		sink:       sink,
		logger:     log.WithField("session", id),
		now:        now,
		lastActive: now(),
	}
	if s.sink == nil {
		s.sink = func(View) {}
	}

	s.orch = pipeline.New(ctx, fetcher, s.logger, pipeline.WithOnUpdate(s.publish))
	store.Subscribe(func(p contracts.Params) {
		s.orch.Issue(p)
	})
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Store returns the session's parameter store
func (s *Session) Store() *params.Store { return s.store }

// Start issues the initial tuple
func (s *Session) Start() {
	s.orch.Issue(s.store.Current())
}

// Set applies one control change coming from the page
func (s *Session) Set(field, value string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.Touch()

	before := s.store.Current()
	var after contracts.Params
	switch field {
	case FieldPortfolio:
		after = s.store.SetPortfolio(contracts.PortfolioID(value))
	case FieldStart:
		d, err := date.Parse(value)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		after = s.store.SetStart(d)
	case FieldEnd:
		d, err := date.Parse(value)
		if err != nil {
			return fmt.Errorf("end: %w", err)
		}
		after = s.store.SetEnd(d)
	default:
		return fmt.Errorf("%w %q", ErrUnknownField, field)
	}

	// clamped or fallen back to the tuple already shown: resend it so the page
	// controls match what is drawn
	if after == before {
		s.orch.Republish()
	}
	return nil
}

// View builds the current view
func (s *Session) View() View {
	return buildView(s.store, s.orch.Snapshot(), s.opts)
}

// Wait blocks until every issued fetch has settled
func (s *Session) Wait() {
	s.orch.Wait()
}

// LastActive returns when the page last touched the session
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close stops publishing and cancels in-flight fetches
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.orch.Close()
}

// Touch records page activity, e.g. a keepalive answered by the browser
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Attach marks the session as bound to a live connection; attached sessions are
// never swept as idle
func (s *Session) Attach() {
	s.mu.Lock()
	s.attached++
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Detach undoes one Attach
func (s *Session) Detach() {
	s.mu.Lock()
	if s.attached > 0 {
		s.attached--
	}
	s.lastActive = s.now()
	s.mu.Unlock()
}

// idleSince reports whether the session is detached and inactive since cutoff
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached == 0 && s.lastActive.Before(cutoff)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// publish runs for every orchestrator update, in order
func (s *Session) publish(u pipeline.Update) {
	if s.isClosed() {
		return
	}

	view := buildView(s.store, u.Snapshot, s.opts)
	if u.Kind == pipeline.KindWeights && len(view.DroppedKeys) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"params":  view.Params.String(),
			"dropped": view.DroppedKeys,
		}).Warn("Weight keys missing from first record are not drawn")
	}

	s.sink(view)
}
