package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ternarybob/forge/internal/store"
)

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
}

// runOperationRequest is the body of POST /sessions/{id}/operations.
type runOperationRequest struct {
	Type string `json:"type,omitempty"`
	Task string `json:"task"`
}

// handleCreateSession persists a new running session (§3 Session).
// Type defaults to "chat"; anything the caller passes as "codex" is
// additionally watched by the completion detector once one is wired.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil || s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessType := store.SessionTypeChat
	if req.Type == string(store.SessionTypeCodex) {
		sessType = store.SessionTypeCodex
	}

	now := time.Now()
	sess := store.Session{
		ID:         uuid.NewString(),
		Type:       sessType,
		ProjectID:  req.ProjectID,
		Status:     store.SessionStatusRunning,
		StartedAt:  now,
		LastActive: now,
	}
	if err := s.db.CreateSession(r.Context(), sess); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.sessions != nil {
		_, _ = s.sessions.Get(sess.ID) // lazily materializes in-memory history
	}

	writeJSON(w, http.StatusCreated, sess)
}

// handleGetSession returns the persisted session row.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleRunOperation creates an operation for the session and drives it
// to completion synchronously (§4.G create_operation + run_operation).
// A caller that wants to stream events should poll GET
// /operations/{id}/events instead of waiting on this response; this
// handler blocks for simplicity, matching the teacher's other
// synchronous REST handlers in this package.
func (s *Server) handleRunOperation(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}
	sessionID := chi.URLParam(r, "id")

	var req runOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	opType := req.Type
	if opType == "" {
		opType = "chat"
	}

	sess, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if running, err := s.db.HasRunningOperation(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if running {
		writeError(w, http.StatusConflict, "session already has a running operation")
		return
	}

	op, err := s.eng.CreateOperation(r.Context(), sessionID, opType, req.Task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runErr := s.eng.RunOperation(r.Context(), op.ID, sessionID, req.Task, sess.ProjectID, opType, nil)

	result, err := s.eng.GetOperation(r.Context(), op.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	resp := map[string]any{"operation": result}
	if runErr != nil {
		status = http.StatusUnprocessableEntity
		resp["error"] = runErr.Error()
	}
	writeJSON(w, status, resp)
}

// handleGetOperation is a read accessor over a persisted operation row.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}
	op, err := s.eng.GetOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// handleGetOperationEvents returns the operation's event log in
// insertion order.
func (s *Server) handleGetOperationEvents(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}
	events, err := s.eng.GetOperationEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleGetOperationArtifacts returns the artifacts the operation
// produced, in insertion order (Invariant 3).
func (s *Server) handleGetOperationArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "operation engine is not configured")
		return
	}
	artifacts, err := s.eng.GetArtifactsForOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}
