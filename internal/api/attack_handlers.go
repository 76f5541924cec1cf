package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/redteam"
)

// RedTeamHandler serves the attack-simulation surface.
type RedTeamHandler struct {
	Simulator *redteam.Simulator
	Findings  redteam.FindingStore
	Primary   Pinger
	Secondary Pinger
}

// RegisterRoutes mounts the attack routes.
func (h *RedTeamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/attacks/simulate", h.Simulate)
	mux.HandleFunc("POST /api/v1/attacks/simulate/qwen", h.simulateModel("qwen"))
	mux.HandleFunc("POST /api/v1/attacks/simulate/mistral", h.simulateModel("mistral"))
	mux.HandleFunc("GET /api/v1/attacks/model-status", h.ModelStatus)
	mux.HandleFunc("GET /api/v1/attacks/status", h.Status)
	mux.HandleFunc("GET /api/v1/attacks/vulnerabilities", h.Vulnerabilities)
	mux.HandleFunc("GET /api/v1/attacks/scans", h.Scans)
}

// attackConfig is the optional request body for simulate endpoints.
type attackConfig struct {
	StoreFindings *bool `json:"store_findings"`
}

// findingStore resolves the persistence target: findings persist unless the
// request disabled it.
func (h *RedTeamHandler) findingStore(r *http.Request) redteam.FindingStore {
	var cfg attackConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err == nil {
		if cfg.StoreFindings != nil && !*cfg.StoreFindings {
			return nil
		}
	}
	return h.Findings
}

// Simulate handles POST /api/v1/attacks/simulate: the combined cycle over
// every vulnerability from both reviewers.
func (h *RedTeamHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	result, err := h.Simulator.RunCycle(r.Context(), h.findingStore(r))
	if err != nil {
		logging.Op().Error("red team cycle failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RedTeamHandler) simulateModel(model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.Simulator.RunModelCycle(r.Context(), model, h.findingStore(r))
		if err != nil {
			logging.Op().Error("model red team cycle failed", "model", model, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ModelStatus handles GET /api/v1/attacks/model-status.
func (h *RedTeamHandler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()

	status := func(p Pinger) string {
		if p != nil && p.Ping(ctx) {
			return "online"
		}
		return "offline"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mistral": status(h.Primary),
		"qwen":    status(h.Secondary),
	})
}

// Status handles GET /api/v1/attacks/status.
func (h *RedTeamHandler) Status(w http.ResponseWriter, r *http.Request) {
	backendConnected := true
	vulns, err := h.Simulator.FetchVulnerabilities(r.Context(), "")
	if err != nil {
		backendConnected = false
	}
	scans, err := h.Simulator.FetchRecentScans(r.Context())
	if err != nil {
		backendConnected = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":                   "red-team-attack-simulator",
		"status":                    "operational",
		"backend_connected":         backendConnected,
		"vulnerabilities_available": len(vulns),
		"recent_scans_available":    len(scans),
	})
}

// Vulnerabilities handles GET /api/v1/attacks/vulnerabilities?model=.
func (h *RedTeamHandler) Vulnerabilities(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model != "" && model != "qwen" && model != "mistral" {
		writeError(w, http.StatusUnprocessableEntity, "model must be qwen or mistral")
		return
	}

	vulns, err := h.Simulator.FetchVulnerabilities(r.Context(), model)
	if err != nil {
		logging.Op().Warn("vulnerability fetch failed", "error", err)
		vulns = nil
	}
	if vulns == nil {
		vulns = []redteam.TargetVulnerability{}
	}

	var modelFilter any
	if model != "" {
		modelFilter = model
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":           len(vulns),
		"model_filter":    modelFilter,
		"vulnerabilities": vulns,
	})
}

// Scans handles GET /api/v1/attacks/scans.
func (h *RedTeamHandler) Scans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.Simulator.FetchRecentScans(r.Context())
	if err != nil {
		logging.Op().Warn("scan fetch failed", "error", err)
	}
	if scans == nil {
		scans = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(scans),
		"scans": scans,
	})
}
