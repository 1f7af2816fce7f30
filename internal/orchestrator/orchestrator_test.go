package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/claude-orchestrator/internal/budget"
	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/idempotency"
	"github.com/asheshgoplani/claude-orchestrator/internal/policy"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
	"github.com/asheshgoplani/claude-orchestrator/internal/registry"
	"github.com/asheshgoplani/claude-orchestrator/internal/router"
)

type harness struct {
	o    *Orchestrator
	fake *provider.Fake
	b    *budget.Tracker
	pol  *policy.Store
}

func newHarness(t *testing.T, pol policy.Policy, tickLimit, dayLimit int64) *harness {
	t.Helper()
	reg := registry.New()
	b := budget.NewTracker(tickLimit, dayLimit)
	fake := provider.NewFake("fake-1", []string{"claude-3-opus", "claude-3-haiku"})
	r := router.New(reg, fake)
	ps := policy.NewStore(pol)
	j := idempotency.NewMemoryJournal(64)
	return &harness{o: New("agent-1", ps, b, r, reg, j), fake: fake, b: b, pol: ps}
}

func basicRequest(model string) *provider.Request {
	return &provider.Request{Model: model, Prompt: json.RawMessage(`"hello"`)}
}

// S1: happy path — submit, observe completion, reconcile settles budget.
func TestSeedHappyPath(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 100_000_000)
	h.fake.AutoComplete = true
	h.fake.AutoCompleteCostUSD = 500_000

	handle, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)
	require.NotEmpty(t, handle.SessionID)

	st, err := h.o.Status(context.Background(), handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusComplete, st.Kind)

	state := h.b.State()
	assert.Equal(t, int64(500_000), state.Tick.SpentUSD)
	assert.Equal(t, int64(0), state.Tick.ReservedUSD)
}

// S2: a request whose cost cap can't be reserved fails cleanly and leaves
// no session behind.
func TestSeedBudgetOverflowAtReserve(t *testing.T) {
	h := newHarness(t, policy.Default(), 1_000_000, 1_000_000)

	req := basicRequest("claude-3-opus")
	req.MaxCostUSD = 2_000_000

	_, err := h.o.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindBudgetExceeded))

	state := h.b.State()
	assert.Equal(t, int64(0), state.Tick.ReservedUSD)
}

// S3: provider.CreateSession failing releases the reservation it had just
// taken, leaving budget state untouched.
func TestSeedProviderFailureReleasesReservation(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)
	h.fake.FailCreate = claudeerr.Unavailable("backend down")

	req := basicRequest("claude-3-opus")
	req.MaxCostUSD = 1_000_000

	_, err := h.o.Submit(context.Background(), req)
	require.Error(t, err)

	state := h.b.State()
	assert.Equal(t, int64(0), state.Tick.ReservedUSD)
	assert.Equal(t, int64(0), state.Tick.SpentUSD)
}

// S4: a session that lands on AwaitingToolApproval can be approved, which
// clears the pending tool and appends a tool log entry.
func TestSeedToolApprovalGating(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	handle, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)

	h.fake.SetPendingTool(handle.SessionID, provider.PendingTool{Tool: "bash", Args: json.RawMessage(`{"cmd":"ls"}`)})

	pt, err := h.o.PendingTool(context.Background(), handle.SessionID)
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "bash", pt.Tool)

	require.NoError(t, h.o.ApproveTool(context.Background(), handle.SessionID, true))

	log, err := h.o.ToolLog(context.Background(), handle.SessionID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, provider.ToolOutcomeOK, log[0].Outcome)
}

// S6: a second submit with the same idempotency key returns the cached
// handle rather than creating a second session.
func TestSeedIdempotentCacheHit(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	req := basicRequest("claude-3-opus")
	req.IdempotencyKey = "retry-1"

	first, err := h.o.Submit(context.Background(), req)
	require.NoError(t, err)

	req2 := basicRequest("claude-3-opus")
	req2.IdempotencyKey = "retry-1"

	second, err := h.o.Submit(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestRequireIdempotencyRejectsMissingKey(t *testing.T) {
	pol := policy.Default()
	pol.RequireIdempotency = true
	h := newHarness(t, pol, 10_000_000, 10_000_000)

	_, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindIdempotencyRequired))
}

func TestModelGateRejectsDisallowedModel(t *testing.T) {
	pol := policy.Default()
	pol.AllowedModels = []string{"claude-3-haiku"}
	h := newHarness(t, pol, 10_000_000, 10_000_000)

	_, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindInvalidRequest))
}

func TestConcurrencyGateCountsNonTerminalSessions(t *testing.T) {
	pol := policy.Default()
	pol.MaxConcurrent = 1
	h := newHarness(t, pol, 10_000_000, 10_000_000)

	_, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)

	_, err = h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindInvalidRequest))
}

func TestWatchRejectsSecondConcurrentWatcher(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	handle, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)

	w1, err := h.o.OpenWatch(handle.SessionID)
	require.NoError(t, err)
	defer w1.Close()

	_, err = h.o.OpenWatch(handle.SessionID)
	require.Error(t, err)

	w1.Close()
	w2, err := h.o.OpenWatch(handle.SessionID)
	require.NoError(t, err)
	w2.Close()
}

func TestWatchNextReturnsChunkThenSettlesOnTerminal(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	handle, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)

	h.fake.SetState(handle.SessionID, provider.SessionState{
		Kind:         provider.StatusComplete,
		LastResponse: json.RawMessage(`{"text":"done"}`),
		CostUSD:      250_000,
	})

	w, err := h.o.OpenWatch(handle.SessionID)
	require.NoError(t, err)
	defer w.Close()

	chunk, err := w.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, chunk)

	state := h.b.State()
	assert.Equal(t, int64(250_000), state.Tick.SpentUSD)
}

func TestForkCreatesFreshZeroReservationSession(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	handle, err := h.o.Submit(context.Background(), basicRequest("claude-3-opus"))
	require.NoError(t, err)

	forkedID, err := h.o.Fork(context.Background(), handle.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, handle.SessionID, forkedID)

	st, err := h.o.Status(context.Background(), forkedID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusIdle, st.Kind)
}

func TestControlStopMarksFailedAndReleasesReservation(t *testing.T) {
	h := newHarness(t, policy.Default(), 10_000_000, 10_000_000)

	req := basicRequest("claude-3-opus")
	req.MaxCostUSD = 1_000_000
	handle, err := h.o.Submit(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, h.o.Control(context.Background(), handle.SessionID, "stop"))

	st, err := h.o.Status(context.Background(), handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusFailed, st.Kind)

	state := h.b.State()
	assert.Equal(t, int64(0), state.Tick.ReservedUSD)
}
