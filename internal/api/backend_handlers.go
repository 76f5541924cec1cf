package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelai/sentinel/internal/config"
	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/store"
	"github.com/sentinelai/sentinel/internal/webhook"
)

// ScanQueue enqueues scan jobs; satisfied by the Redis queue.
type ScanQueue interface {
	Enqueue(ctx context.Context, job domain.ScanJob) error
}

// Pinger checks a model backend's liveness.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// BackendHandler serves the analysis backend surface: scan triggers, the
// webhook, and the dashboard projections.
type BackendHandler struct {
	Store     *store.Store
	Queue     ScanQueue
	Primary   Pinger
	Secondary Pinger
	Webhook   config.WebhookConfig
}

// RegisterRoutes mounts the backend routes.
func (h *BackendHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scan", h.TriggerScan)
	mux.HandleFunc("POST /api/github/webhook", h.GitHubWebhook)
	mux.HandleFunc("GET /api/dashboard/stats", h.DashboardStats)
	mux.HandleFunc("GET /api/dashboard/recent_scans", h.RecentScans)
	mux.HandleFunc("GET /api/dashboard/vulnerabilities", h.Vulnerabilities)
	mux.HandleFunc("GET /api/dashboard/ai_status", h.AIStatus)
	mux.HandleFunc("DELETE /api/dashboard/reset", h.Reset)
	mux.HandleFunc("GET /api/graph/data", h.GraphData)
	mux.HandleFunc("GET /{$}", h.Root)
}

// Root handles GET /.
func (h *BackendHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Sentinel analysis API is running"})
}

// TriggerScan handles POST /api/scan.
func (h *BackendHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GitHubURL string `json:"github_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GitHubURL == "" {
		writeError(w, http.StatusBadRequest, "github_url is required")
		return
	}

	repo := req.GitHubURL
	if idx := strings.Index(repo, "github.com/"); idx >= 0 {
		repo = repo[idx+len("github.com/"):]
	}
	repo = strings.TrimSuffix(strings.Trim(repo, "/"), ".git")

	job := domain.ScanJob{ID: uuid.NewString(), Repo: repo, Branch: "main", Commit: "latest"}
	if err := h.Queue.Enqueue(r.Context(), job); err != nil {
		logging.Op().Error("failed to queue scan", "repo", repo, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue scan")
		return
	}

	logging.Op().Info("manual scan queued", "repo", repo, "job", job.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Scan triggered for %s", repo),
		"repo":    repo,
	})
}

// GitHubWebhook handles POST /api/github/webhook. The signature is an
// HMAC-SHA256 of the raw body; a mismatch is rejected unless the
// allow-unverified knob is set, in which case it is logged and processing
// continues.
func (h *BackendHandler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get(webhook.SignatureHeader)
	if !webhook.Verify(h.Webhook.Secret, body, signature) {
		if !h.Webhook.AllowUnverified {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logging.Op().Warn("webhook signature mismatch allowed by configuration")
	}

	var event struct {
		Action      string `json:"action"`
		PullRequest *struct {
			Number  int    `json:"number"`
			DiffURL string `json:"diff_url"`
			Head    struct {
				SHA string `json:"sha"`
			} `json:"head"`
		} `json:"pull_request"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if event.PullRequest == nil ||
		(event.Action != "opened" && event.Action != "synchronize" && event.Action != "reopened") {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "message": "Event ignored."})
		return
	}

	job := domain.ScanJob{
		ID:      uuid.NewString(),
		Repo:    event.Repository.FullName,
		Branch:  "main",
		Commit:  event.PullRequest.Head.SHA,
		DiffURL: event.PullRequest.DiffURL,
	}
	if err := h.Queue.Enqueue(r.Context(), job); err != nil {
		logging.Op().Error("failed to queue webhook scan", "repo", job.Repo, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue scan")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Scan triggered for PR #%d", event.PullRequest.Number),
	})
}

// DashboardStats handles GET /api/dashboard/stats. Returns safe defaults
// when the store is empty or unreachable.
func (h *BackendHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	score, ok, err := h.Store.LatestScore(ctx)
	if err != nil || !ok {
		if err != nil {
			logging.Op().Warn("stats query failed", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]int{"score": 100, "drift": 0, "exploits_prevented": 0})
		return
	}

	total, err := h.Store.CountScans(ctx)
	if err != nil {
		total = 0
	}
	high, err := h.Store.CountHighSeverityScans(ctx)
	if err != nil {
		high = 0
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"score":              score,
		"drift":              total,
		"exploits_prevented": high,
	})
}

// RecentScans handles GET /api/dashboard/recent_scans.
func (h *BackendHandler) RecentScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.Store.RecentScans(r.Context(), 5)
	if err != nil {
		logging.Op().Warn("recent scans query failed", "error", err)
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	out := make([]map[string]any, 0, len(scans))
	for _, s := range scans {
		status := "Blocked"
		if s.Score >= 80 {
			status = "Passed"
		}
		issues := 5
		switch s.Severity {
		case domain.SeverityLow:
			issues = 0
		case domain.SeverityMedium:
			issues = 2
		}
		out = append(out, map[string]any{
			"id":     "#" + head(s.CommitHash, 6),
			"status": status,
			"title":  "Scan for " + s.RepoName,
			"issues": issues,
			"time":   s.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// flattenedVulnerability is a vulnerability annotated with its scan context.
type flattenedVulnerability struct {
	domain.Vulnerability
	Repo      string `json:"repo"`
	ScanScore int    `json:"scan_score"`
	ScanTime  string `json:"scan_time"`
}

// Vulnerabilities handles GET /api/dashboard/vulnerabilities: the last ten
// scans' findings flattened, newest scan first.
func (h *BackendHandler) Vulnerabilities(w http.ResponseWriter, r *http.Request) {
	scans, err := h.Store.ScansWithVulnerabilities(r.Context(), 10)
	if err != nil {
		logging.Op().Warn("vulnerabilities query failed", "error", err)
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	out := make([]flattenedVulnerability, 0)
	for _, s := range scans {
		for _, v := range s.Vulnerabilities {
			out = append(out, flattenedVulnerability{
				Vulnerability: v,
				Repo:          s.RepoName,
				ScanScore:     s.Score,
				ScanTime:      s.Timestamp.Format("2006-01-02 15:04:05"),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// AIStatus handles GET /api/dashboard/ai_status.
func (h *BackendHandler) AIStatus(w http.ResponseWriter, r *http.Request) {
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

// Reset handles DELETE /api/dashboard/reset.
func (h *BackendHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.ResetScans(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Database wiped."})
}

// GraphData handles GET /api/graph/data: a lightweight node set derived from
// the five most recent scans.
func (h *BackendHandler) GraphData(w http.ResponseWriter, r *http.Request) {
	empty := map[string]any{
		"nodes": []any{},
		"stats": map[string]int{"total": 0, "vulnerable": 0, "clean": 0},
	}

	scans, err := h.Store.GraphScans(r.Context(), 5)
	if err != nil {
		logging.Op().Warn("graph query failed", "error", err)
		writeJSON(w, http.StatusOK, empty)
		return
	}

	type node struct {
		ID           string          `json:"id"`
		Label        string          `json:"label"`
		FunctionName string          `json:"function_name"`
		Repo         string          `json:"repo"`
		Status       string          `json:"status"`
		VulnType     domain.VulnKind `json:"vuln_type"`
		Confidence   int             `json:"confidence"`
		Reasoning    string          `json:"reasoning"`
		FilePath     string          `json:"file_path"`
	}

	seen := make(map[string]bool)
	nodes := make([]node, 0)
	for _, scan := range scans {
		for _, v := range scan.Vulnerabilities {
			key := fmt.Sprintf("%s:%s:%s", scan.RepoName, v.FunctionName, v.Path)
			if seen[key] {
				continue
			}
			seen[key] = true

			label := v.FunctionName
			if v.Path != "" {
				label = v.Method + " " + v.Path
			}
			nodes = append(nodes, node{
				ID:           key,
				Label:        label,
				FunctionName: v.FunctionName,
				Repo:         scan.RepoName,
				Status:       "vulnerable",
				VulnType:     v.Kind,
				Confidence:   v.Confidence,
				Reasoning:    v.Reasoning,
				FilePath:     v.FilePath,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"stats": map[string]int{
			"total":      len(nodes),
			"vulnerable": len(nodes),
			"clean":      0,
		},
	})
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
