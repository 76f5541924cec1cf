package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/store"
)

// FindingHandler serves the findings CRUD surface.
type FindingHandler struct {
	Store *store.Store
}

// RegisterRoutes mounts the finding routes.
func (h *FindingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/findings", h.List)
	mux.HandleFunc("POST /api/v1/findings", h.Create)
	mux.HandleFunc("GET /api/v1/findings/{id}", h.Get)
	mux.HandleFunc("PATCH /api/v1/findings/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/findings/{id}", h.Delete)
}

func findingID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// List handles GET /api/v1/findings with severity/status/limit/offset.
func (h *FindingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FindingFilter{
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		Limit:    50,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v >= 1 && v <= 100 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}

	findings, err := h.Store.ListFindings(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if findings == nil {
		findings = []domain.Finding{}
	}
	writeJSON(w, http.StatusOK, findings)
}

// Create handles POST /api/v1/findings.
func (h *FindingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var finding domain.Finding
	if err := json.NewDecoder(r.Body).Decode(&finding); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if finding.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	if err := h.Store.CreateFinding(r.Context(), &finding); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, finding)
}

// Get handles GET /api/v1/findings/{id}.
func (h *FindingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := findingID(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid finding id")
		return
	}
	finding, err := h.Store.GetFinding(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if finding == nil {
		writeError(w, http.StatusNotFound, "Finding not found")
		return
	}
	writeJSON(w, http.StatusOK, finding)
}

// Update handles PATCH /api/v1/findings/{id}.
func (h *FindingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := findingID(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid finding id")
		return
	}
	var update domain.FindingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	finding, err := h.Store.UpdateFinding(r.Context(), id, update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if finding == nil {
		writeError(w, http.StatusNotFound, "Finding not found")
		return
	}
	writeJSON(w, http.StatusOK, finding)
}

// Delete handles DELETE /api/v1/findings/{id}.
func (h *FindingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := findingID(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid finding id")
		return
	}
	deleted, err := h.Store.DeleteFinding(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Finding not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
