// Package backendtest serves a fake portfolio backend for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/date"
)

// Server is an in-memory backend speaking the portfolio backend's JSON contract
type Server struct {
	*httptest.Server

	mu         sync.RWMutex
	portfolios []contracts.Portfolio
	values     map[contracts.PortfolioID][]contracts.ValuePoint
	weights    map[contracts.PortfolioID][]contracts.WeightRecord
	broken     map[string]bool

	requests int64
}

// New starts a fake backend; callers must Close it
func New() *Server {
	s := &Server{
		values:  make(map[contracts.PortfolioID][]contracts.ValuePoint),
		weights: make(map[contracts.PortfolioID][]contracts.WeightRecord),
		broken:  make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// AddPortfolio registers a portfolio with its series
func (s *Server) AddPortfolio(p contracts.Portfolio, values []contracts.ValuePoint, weights []contracts.WeightRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios = append(s.portfolios, p)
	s.values[p.ID] = values
	s.weights[p.ID] = weights
}

// Break makes the given resource ("portfolios", "value", "weights") answer with invalid JSON
func (s *Server) Break(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[resource] = true
}

// Requests returns how many requests the server has answered
func (s *Server) Requests() int64 {
	return atomic.LoadInt64(&s.requests)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.requests, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "ping":
		w.Write([]byte("<p>Pong</p>"))

	case len(parts) == 1 && parts[0] == "portfolios":
		if s.broken["portfolios"] {
			w.Write([]byte(`{"instances":`))
			return
		}
		writeJSON(w, map[string]interface{}{"instances": s.portfolios})

	case len(parts) == 3 && parts[0] == "portfolio":
		id := contracts.PortfolioID(parts[1])
		if _, ok := s.values[id]; !ok {
			http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
			return
		}

		from, to, ok := parseRange(r)
		if !ok {
			http.Error(w, "bad date", http.StatusBadRequest)
			return
		}

		if s.broken[parts[2]] {
			w.Write([]byte(`{"values": [{"date": 12}]}`))
			return
		}

		switch parts[2] {
		case "value":
			out := []contracts.ValuePoint{}
			for _, v := range s.values[id] {
				if inRange(v.Date, from, to) {
					out = append(out, v)
				}
			}
			writeJSON(w, map[string]interface{}{"portfolio_id": id, "values": out})
		case "weights":
			out := []contracts.WeightRecord{}
			for _, rec := range s.weights[id] {
				if inRange(rec.Date, from, to) {
					out = append(out, rec)
				}
			}
			writeJSON(w, map[string]interface{}{"portfolio_id": id, "weights": out})
		default:
			http.NotFound(w, r)
		}

	default:
		http.NotFound(w, r)
	}
}

func parseRange(r *http.Request) (date.Date, date.Date, bool) {
	var from, to date.Date
	var err error

	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = date.Parse(s); err != nil {
			return from, to, false
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = date.Parse(s); err != nil {
			return from, to, false
		}
	}
	return from, to, true
}

func inRange(d, from, to date.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
