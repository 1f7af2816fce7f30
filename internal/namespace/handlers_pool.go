package namespace

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
)

func (s *Server) handlePoolConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.pool.Config())
	case http.MethodPost, http.MethodPut:
		var cfg mcppool.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
			return
		}
		s.pool.SetConfig(cfg)
		writeJSON(w, http.StatusOK, s.pool.Config())
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.pool.PoolStatus())
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	m := s.pool.PoolMetrics()
	for _, worker := range s.pool.List() {
		s.metrics.poolWorkers.WithLabelValues(worker.ID).Set(float64(worker.Metrics.ActiveSessions))
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.proxy.Status())
}

func (s *Server) handleProxyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	m := s.proxy.Metrics()
	s.metrics.proxyDecisions.WithLabelValues("allowed").Add(0)
	s.metrics.proxyDecisions.WithLabelValues("denied").Add(0)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleProxyAllowlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.proxy.Allowlist())
	case http.MethodPost, http.MethodPut:
		var patterns []string
		if err := json.NewDecoder(r.Body).Decode(&patterns); err != nil {
			writeErr(w, claudeerr.InvalidRequest("malformed JSON: "+err.Error()))
			return
		}
		s.proxy.SetAllowlist(patterns)
		writeJSON(w, http.StatusOK, s.proxy.Allowlist())
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleWorkersList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	workers := s.pool.List()
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	writeJSON(w, http.StatusOK, workers)
}

// handleWorkerByID dispatches /workers/<id>/{status,isolation,sessions,metrics}.
func (s *Server) handleWorkerByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/workers/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	workerID, leaf := parts[0], parts[1]

	desc, ok := s.pool.Get(workerID)
	if !ok {
		writeErr(w, claudeerr.NotFound("worker not found"))
		return
	}
	switch leaf {
	case "status":
		writeJSON(w, http.StatusOK, map[string]string{"status": desc.Status.String()})
	case "isolation":
		writeJSON(w, http.StatusOK, desc.Isolation)
	case "sessions":
		writeJSON(w, http.StatusOK, desc.Sessions)
	case "metrics":
		writeJSON(w, http.StatusOK, desc.Metrics)
	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}
