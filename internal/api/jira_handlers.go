package api

import (
	"net/http"
	"strconv"

	"github.com/sentinelai/sentinel/internal/dispatcher"
	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/store"
	"github.com/sentinelai/sentinel/internal/tracker"
)

// JiraHandler serves the tracker integration surface.
type JiraHandler struct {
	Store      *store.Store
	Tracker    *tracker.Client
	Dispatcher *dispatcher.Dispatcher
}

// RegisterRoutes mounts the tracker routes.
func (h *JiraHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jira/status", h.Status)
	mux.HandleFunc("GET /api/jira/issues", h.Issues)
	mux.HandleFunc("GET /api/jira/issues/{scan_id}", h.IssuesForScan)
	mux.HandleFunc("GET /api/jira/stats", h.Stats)
	mux.HandleFunc("POST /api/jira/trigger", h.Trigger)
	mux.HandleFunc("POST /api/jira/config", h.Config)
}

// Status handles GET /api/jira/status.
func (h *JiraHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "running",
		"jira":    h.Tracker.CheckConnectivity(r.Context()),
	})
}

// Issues handles GET /api/jira/issues?limit=.
func (h *JiraHandler) Issues(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	issues, err := h.Store.ListTickets(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if issues == nil {
		issues = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues, "total": len(issues)})
}

// IssuesForScan handles GET /api/jira/issues/{scan_id}.
func (h *JiraHandler) IssuesForScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := strconv.ParseInt(r.PathValue("scan_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid scan id")
		return
	}
	issues, err := h.Store.TicketsForScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if issues == nil {
		issues = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": scanID,
		"issues":  issues,
		"total":   len(issues),
	})
}

// Stats handles GET /api/jira/stats.
func (h *JiraHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetTicketStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Trigger handles POST /api/jira/trigger: requests an immediate tick.
func (h *JiraHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.Dispatcher.Trigger()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "triggered",
		"message": "Processing task queued.",
	})
}

// Config handles POST /api/jira/config. Configuration is env-managed; the
// endpoint acknowledges without persisting.
func (h *JiraHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "acknowledged",
		"message": "Tracker configuration is managed via environment variables.",
	})
}
