package namespace

import (
	"encoding/json"
	"net/http"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
)

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.orch.Policy())
	case http.MethodPost, http.MethodPut:
		var p policy.Policy
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
			return
		}
		if err := s.orch.SetPolicy(p); err != nil {
			writeErr(w, claudeerr.InvalidRequest(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, s.orch.Policy())
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Usage())
}
