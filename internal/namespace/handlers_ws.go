package namespace

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

type wsServerMessage struct {
	Type  string          `json:"type"` // chunk, status, error
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// sessionOutputWS streams chunks over a WebSocket until the session reaches
// a terminal status or the connection closes, mirroring the teacher's
// session-terminal WS bridge but pull-driven by Watch.Next instead of a pty.
func (s *Server) sessionOutputWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	watch, err := s.orch.OpenWatch(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer watch.Close()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wsLog := logging.ForComponent(logging.CompNamespace)
	ctx := r.Context()
	for {
		chunk, err := watch.Next(ctx, 30*time.Second)
		if err != nil {
			_ = conn.WriteJSON(wsServerMessage{Type: "error", Error: err.Error()})
			return
		}
		if chunk == nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		if err := conn.WriteJSON(wsServerMessage{Type: "chunk", Data: chunk.Data}); err != nil {
			wsLog.Debug("ws_write_failed", "session_id", sessionID, "error", err.Error())
			return
		}
		if st, err := s.orch.Status(ctx, sessionID); err == nil && st.Kind.Terminal() {
			_ = conn.WriteJSON(wsServerMessage{Type: "status", Data: mustJSON(st)})
			return
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
