package namespace

import (
	"net/http"
	"sort"
	"strings"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
)

func (s *Server) handleProvidersList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	ids := make([]string, 0)
	for _, p := range s.orch.Providers() {
		ids = append(ids, p.ID())
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, ids)
}

// handleProviderByID dispatches /providers/<id>/{info,models,health}.
func (s *Server) handleProviderByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/providers/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	providerID, leaf := parts[0], parts[1]

	var found bool
	for _, p := range s.orch.Providers() {
		if p.ID() != providerID {
			continue
		}
		found = true
		switch leaf {
		case "info":
			writeJSON(w, http.StatusOK, p.Descriptor())
		case "models":
			writeJSON(w, http.StatusOK, p.Descriptor().SupportedModels)
		case "health":
			status := p.Health(r.Context())
			s.metrics.providerHealth.WithLabelValues(providerID).Set(healthGaugeValue(string(status)))
			writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
		default:
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		}
		break
	}
	if !found {
		writeErr(w, claudeerr.NotFound("provider not found"))
	}
}

func (s *Server) handleTunnelEndpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.tunnels.Endpoints())
}
