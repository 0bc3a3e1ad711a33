package handlers

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/wonny/portfolioviz/internal/chart"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/internal/dashboard"
	"github.com/wonny/portfolioviz/pkg/date"
	"github.com/wonny/portfolioviz/pkg/logger"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// BackendHealth reports the last known backend reachability (the backend_probe job)
type BackendHealth interface {
	Healthy() bool
}

// DashboardHandler serves the page and the one-shot JSON endpoints
// ⭐ SSOT: 대시보드 HTTP 핸들러는 이 구조체에서만
type DashboardHandler struct {
	manager *dashboard.Manager
	backend BackendHealth
	logger  *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(manager *dashboard.Manager, backend BackendHealth, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		manager: manager,
		backend: backend,
		logger:  log,
	}
}

type portfolioOption struct {
	ID       contracts.PortfolioID
	Name     string
	Selected bool
}

type pageData struct {
	Title       string
	ValueTitle  string
	WeightTitle string
	Portfolios  []portfolioOption
	Start       string
	StartMin    string
	StartMax    string
	End         string
	EndMin      string
	EndMax      string
}

// Page renders the dashboard at the default tuple
// GET /
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	store := h.manager.NewStore()
	p := store.Current()
	b := store.Bounds()

	data := pageData{
		Title:       "Portfolio Visualization",
		ValueTitle:  chart.ValueTitle(p.PortfolioID),
		WeightTitle: chart.WeightTitle,
		Start:       p.Start.String(),
		StartMin:    b.StartMin.String(),
		StartMax:    b.StartMax.String(),
		End:         p.End.String(),
		EndMin:      b.EndMin.String(),
		EndMax:      b.EndMax.String(),
	}
	for _, pf := range store.Portfolios() {
		data.Portfolios = append(data.Portfolios, portfolioOption{
			ID:       pf.ID,
			Name:     pf.Name,
			Selected: pf.ID == p.PortfolioID,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.WithError(err).Error("Failed to render dashboard page")
	}
}

// GetView fetches both series for one tuple and returns the resulting view
// GET /api/view?portfolio=1&from=2022-01-01&to=2022-06-30
func (h *DashboardHandler) GetView(w http.ResponseWriter, r *http.Request) {
	defaults := h.manager.Defaults()
	today := date.Today()
	if defaults.Today != nil {
		today = defaults.Today()
	}

	p := contracts.Params{
		PortfolioID: defaults.PortfolioID,
		Start:       defaults.Start,
		End:         today,
	}

	q := r.URL.Query()
	if id := q.Get("portfolio"); id != "" {
		p.PortfolioID = contracts.PortfolioID(id)
	}
	if s := q.Get("from"); s != "" {
		d, err := date.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from: "+err.Error())
			return
		}
		p.Start = d
	}
	if s := q.Get("to"); s != "" {
		d, err := date.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
		p.End = d
	}
	if err := p.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.manager.RenderOnce(r.Context(), p)
	if err != nil {
		h.logger.WithError(err).WithField("params", p.String()).Error("Failed to render view")
		respondError(w, http.StatusInternalServerError, "Failed to render view")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GetPortfolios returns the portfolio list loaded at start-up
// GET /api/portfolios
func (h *DashboardHandler) GetPortfolios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"instances": h.manager.Portfolios(),
	})
}

// Health reports process and backend health
// GET /health
func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":   "ok",
		"service":  "portfolioviz",
		"backend":  "ok",
		"sessions": h.manager.Len(),
	}

	if !h.backend.Healthy() {
		body["status"] = "degraded"
		body["backend"] = "unreachable"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	respondJSON(w, http.StatusOK, body)
}
