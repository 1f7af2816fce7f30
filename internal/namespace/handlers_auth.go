package namespace

import (
	"encoding/json"
	"net/http"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/tunnelauth"
)

func (s *Server) handleAuthTunnels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tunnels.Endpoints())
	case http.MethodPost, http.MethodPut:
		var endpoints []tunnelauth.Endpoint
		if err := json.NewDecoder(r.Body).Decode(&endpoints); err != nil {
			writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
			return
		}
		s.tunnels.SetEndpoints(endpoints)
		writeJSON(w, http.StatusOK, s.tunnels.Endpoints())
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tunnels.Challenges())
	case http.MethodPost, http.MethodPut:
		var resp tunnelauth.Response
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
			return
		}
		if err := s.tunnels.VerifyResponse(resp); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.tunnels.Status())
}
