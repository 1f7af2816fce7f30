package namespace

import (
	"net/http"

	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

// handleDebugLogtail serves the daemon's own recent-activity log tail, the
// same bytes logging.DumpRingBuffer would write to a support-bundle file.
// Gated behind the normal bearer auth (only /healthz and /metrics skip it),
// so this is an operator-only diagnostic, not a public surface.
func (s *Server) handleDebugLogtail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(logging.RecentLogBytes())
}
