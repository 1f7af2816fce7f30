package namespace

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/orchestrator"
)

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read body")
		return
	}
	req, err := orchestrator.DecodeRequest(raw)
	if err != nil {
		writeErr(w, err)
		return
	}
	handle, err := s.orch.Submit(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// handleSessionByID dispatches every /sessions/<id>/<leaf> path.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required")
		return
	}
	sessionID, leaf := parts[0], parts[1]

	switch leaf {
	case "status":
		s.sessionStatus(w, r, sessionID)
	case "prompt":
		s.sessionPrompt(w, r, sessionID)
	case "response":
		s.sessionResponse(w, r, sessionID)
	case "context":
		s.sessionContext(w, r, sessionID)
	case "output":
		s.sessionOutput(w, r, sessionID)
	case "usage":
		s.sessionUsage(w, r, sessionID)
	case "tools/log":
		s.sessionToolLog(w, r, sessionID)
	case "tools/pending":
		s.sessionPendingTool(w, r, sessionID)
	case "tools/approve":
		s.sessionApproveTool(w, r, sessionID)
	case "fork":
		s.sessionFork(w, r, sessionID)
	case "ctl":
		s.sessionCtl(w, r, sessionID)
	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	st, err := s.orch.Status(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) sessionPrompt(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read body")
		return
	}
	if err := s.orch.Prompt(r.Context(), sessionID, string(raw)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) sessionResponse(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	resp, err := s.orch.Response(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if resp == nil {
		_, _ = w.Write([]byte("null"))
		return
	}
	_, _ = w.Write(resp)
}

func (s *Server) sessionContext(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	resp, err := s.orch.Context(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if resp == nil {
		_, _ = w.Write([]byte("null"))
		return
	}
	_, _ = w.Write(resp)
}

// sessionOutput serves the one watchable path. A plain GET long-polls for a
// single chunk (bounded by a fixed 25s timeout); a WebSocket
// upgrade streams chunks until the session reaches a terminal status.
func (s *Server) sessionOutput(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Header.Get("Upgrade") != "" {
		s.sessionOutputWS(w, r, sessionID)
		return
	}
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	watch, err := s.orch.OpenWatch(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer watch.Close()

	chunk, err := watch.Next(r.Context(), 25*time.Second)
	if err != nil {
		writeErr(w, err)
		return
	}
	if chunk == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) sessionUsage(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	u, err := s.orch.SessionUsage(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) sessionToolLog(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	entries, err := s.orch.ToolLog(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) sessionPendingTool(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	pt, err := s.orch.PendingTool(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

func (s *Server) sessionApproveTool(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
		return
	}
	if req.Approved == nil {
		writeErr(w, claudeerr.InvalidRequest("missing required field: approved"))
		return
	}
	if err := s.orch.ApproveTool(r.Context(), sessionID, *req.Approved); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) sessionFork(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	newID, err := s.orch.Fork(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": newID})
}

func (s *Server) sessionCtl(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read body")
		return
	}
	command := strings.TrimSpace(string(raw))
	if err := s.orch.Control(r.Context(), sessionID, command); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
