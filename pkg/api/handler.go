// Package api exposes the supervisor over HTTP: cycle lifecycle for
// supervised callers, and the operator release surface for quarantines.
// The release endpoint is the only path allowed to clear integrity
// failures, and only when the caller asserts integrity_only.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/psantana5/sentinel/pkg/audit"
	"github.com/psantana5/sentinel/pkg/logging"
	"github.com/psantana5/sentinel/pkg/quarantine"
	"github.com/psantana5/sentinel/pkg/supervisor"
)

// Journal is the audit history the API reads from. Nil disables the
// /audit/events endpoint.
type Journal interface {
	RecentEvents(limit int) ([]audit.Event, error)
}

// Handler handles sentinel API requests.
type Handler struct {
	sup     *supervisor.Supervisor
	journal Journal
	logger  *logging.Logger
}

// NewHandler creates an API handler around the supervisor.
func NewHandler(sup *supervisor.Supervisor, journal Journal, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Handler{sup: sup, journal: journal, logger: logger}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Cycle lifecycle
	r.HandleFunc("/cycles", h.BeginCycle).Methods("POST")
	r.HandleFunc("/cycles", h.ListCycles).Methods("GET")
	r.HandleFunc("/cycles/{id}/heartbeat", h.Heartbeat).Methods("POST")
	r.HandleFunc("/cycles/{id}/complete", h.CompleteCycle).Methods("POST")
	r.HandleFunc("/cycles/{id}/fail", h.FailCycle).Methods("POST")

	// Quarantines and conditions
	r.HandleFunc("/quarantines", h.ListQuarantines).Methods("GET")
	r.HandleFunc("/quarantines/{id}/release", h.ReleaseQuarantine).Methods("POST")
	r.HandleFunc("/conditions", h.ListConditions).Methods("GET")

	// Audit history
	r.HandleFunc("/audit/events", h.ListAuditEvents).Methods("GET")

	// Health
	r.HandleFunc("/health", h.Health).Methods("GET")
}

type beginCycleRequest struct {
	EntityID string            `json:"entity_id"`
	Category string            `json:"category"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BeginCycle starts a supervised cycle for an entity.
func (h *Handler) BeginCycle(w http.ResponseWriter, r *http.Request) {
	var req beginCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	id := h.sup.BeginCycle(req.EntityID, supervisor.CycleOptions{
		Category: supervisor.Category(req.Category),
		Metadata: req.Metadata,
	})
	h.logger.Debug("Cycle started", map[string]interface{}{
		"cycle_id":  id,
		"entity_id": req.EntityID,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"cycle_id": id})
}

// ListCycles returns all live cycles.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles := h.sup.ActiveCycles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

// Heartbeat records liveness for a cycle. A stale heartbeat for a finished
// cycle is 404: the caller's unit of work has already been escalated or
// completed.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.sup.Heartbeat(id) {
		writeError(w, http.StatusNotFound, "cycle not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
}

// CompleteCycle finishes a cycle successfully.
func (h *Handler) CompleteCycle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.sup.CompleteCycle(id) {
		writeError(w, http.StatusNotFound, "cycle not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completed": true})
}

type failCycleRequest struct {
	Reason string `json:"reason"`
}

// FailCycle finishes a cycle as failed.
func (h *Handler) FailCycle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req failCycleRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // an empty body means no reason
	}
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	if !h.sup.FailCycle(id, req.Reason) {
		writeError(w, http.StatusNotFound, "cycle not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"failed": true})
}

// ListQuarantines returns all active quarantine records.
func (h *Handler) ListQuarantines(w http.ResponseWriter, r *http.Request) {
	records := h.sup.Registry().ActiveQuarantines()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quarantines": records,
		"count":       len(records),
	})
}

type releaseRequest struct {
	Actor         string `json:"actor"`
	ReleaseNote   string `json:"release_note,omitempty"`
	IntegrityOnly bool   `json:"integrity_only"`
}

// ReleaseQuarantine releases a quarantine on behalf of an operator. The
// registry's typed denials map onto HTTP statuses: not_found -> 404,
// not_integrity -> 403, not_released -> 409.
func (h *Handler) ReleaseQuarantine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	rec, rerr := h.sup.Registry().Release(id, quarantine.ReleaseRequest{
		Actor:         req.Actor,
		ReleaseNote:   req.ReleaseNote,
		IntegrityOnly: req.IntegrityOnly,
	})
	if rerr != nil {
		status := http.StatusConflict
		switch rerr.Reason {
		case quarantine.DenialNotFound:
			status = http.StatusNotFound
		case quarantine.DenialNotIntegrity:
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]interface{}{
			"error":  rerr.Error(),
			"reason": string(rerr.Reason),
		})
		return
	}

	h.logger.Info("Quarantine released", map[string]interface{}{
		"quarantine_id": rec.ID,
		"actor":         req.Actor,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"quarantine": rec})
}

// ListConditions returns all standing unsafe conditions.
func (h *Handler) ListConditions(w http.ResponseWriter, r *http.Request) {
	conditions := h.sup.Registry().ActiveConditions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditions": conditions,
		"count":      len(conditions),
	})
}

// ListAuditEvents returns recent audit events, newest first.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "audit journal disabled")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.journal.RecentEvents(limit)
	if err != nil {
		h.logger.Error("Failed to read audit journal", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to read audit journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Health reports liveness plus a coarse state summary.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"active_cycles":      len(h.sup.ActiveCycles()),
		"active_quarantines": len(h.sup.Registry().ActiveQuarantines()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
