package namespace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/claude-orchestrator/internal/budget"
	"github.com/asheshgoplani/claude-orchestrator/internal/idempotency"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
	"github.com/asheshgoplani/claude-orchestrator/internal/orchestrator"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
	"github.com/asheshgoplani/claude-orchestrator/internal/registry"
	"github.com/asheshgoplani/claude-orchestrator/internal/router"
	"github.com/asheshgoplani/claude-orchestrator/internal/tunnelauth"
)

// noopSigner always rejects; the namespace tests below don't exercise the
// tunnel challenge/response flow itself (covered in internal/tunnelauth).
type noopSigner struct{}

func (noopSigner) Verify(pubkey string, message []byte, signature string) bool { return false }

func newTestServer(t *testing.T, token string) (*Server, *provider.Fake) {
	t.Helper()
	reg := registry.New()
	b := budget.NewTracker(1_000_000, 10_000_000)
	fake := provider.NewFake("fake-1", []string{"claude-3-opus"})
	r := router.New(reg, fake)
	ps := policy.NewStore(policy.Default())
	j := idempotency.NewMemoryJournal(64)
	orch := orchestrator.New("agent-1", ps, b, r, reg, j)

	tunnels := tunnelauth.NewState(noopSigner{}, 5*time.Minute)
	pool := mcppool.NewPool(mcppool.Config{})
	proxy := mcppool.NewProxy(nil)

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Token: token}, orch, tunnels, pool, proxy)
	return srv, fake
}

func doRequest(srv *Server, method, path, token string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthzServedWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rr := doRequest(srv, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rr := doRequest(srv, http.MethodGet, "/providers", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWrongTokenRejected(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rr := doRequest(srv, http.MethodGet, "/providers", "wrong", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNewSessionThenStatusAndResponse(t *testing.T) {
	srv, fake := newTestServer(t, "secret")

	body := `{"model":"claude-3-opus","prompt":"hi","idempotency_key":"k1"}`
	rr := doRequest(srv, http.MethodPost, "/new", "secret", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var handle struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &handle))
	require.NotEmpty(t, handle.SessionID)

	fake.SetState(handle.SessionID, provider.SessionState{
		Kind:         provider.StatusComplete,
		ProviderID:   fake.ID(),
		Model:        "claude-3-opus",
		LastResponse: json.RawMessage(`"done"`),
		CostUSD:      100,
	})

	rr = doRequest(srv, http.MethodGet, "/sessions/"+handle.SessionID+"/status", "secret", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "complete")

	rr = doRequest(srv, http.MethodGet, "/sessions/"+handle.SessionID+"/response", "secret", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "done")
}

func TestPolicyRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	pol := policy.Default()
	pol.MaxConcurrent = 7
	raw, err := json.Marshal(pol)
	require.NoError(t, err)

	rr := doRequest(srv, http.MethodPost, "/policy", "secret", string(raw))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(srv, http.MethodGet, "/policy", "secret", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"max_concurrent":7`)
}

func TestUnknownSessionStatusIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rr := doRequest(srv, http.MethodGet, "/sessions/does-not-exist/status", "secret", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
