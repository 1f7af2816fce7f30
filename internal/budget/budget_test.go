package budget

import (
	"sync"
	"testing"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveReconcileHappyPath(t *testing.T) {
	tr := NewTracker(1_000_000, 10_000_000)

	r, err := tr.Reserve(500_000)
	require.NoError(t, err)

	st := tr.State()
	assert.Equal(t, int64(500_000), st.Tick.ReservedUSD)

	err = tr.Reconcile(r, 300_000)
	require.NoError(t, err)

	st = tr.State()
	assert.Equal(t, int64(0), st.Tick.ReservedUSD)
	assert.Equal(t, int64(300_000), st.Tick.SpentUSD)
	assert.Equal(t, int64(300_000), st.Day.SpentUSD)
}

func TestReserveFailsCleanlyOnOverflow(t *testing.T) {
	tr := NewTracker(400_000, 0)

	_, err := tr.Reserve(300_000)
	require.NoError(t, err)
	_, err = tr.Reserve(100_000)
	require.NoError(t, err)

	before := tr.State()
	_, err = tr.Reserve(1)
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindBudgetExceeded))

	after := tr.State()
	assert.Equal(t, before, after)
}

func TestZeroLimitIsUnbounded(t *testing.T) {
	tr := NewTracker(0, 0)
	_, err := tr.Reserve(1_000_000_000)
	require.NoError(t, err)
}

func TestZeroAmountReserveIsNoOp(t *testing.T) {
	tr := NewTracker(100, 100)
	r, err := tr.Reserve(0)
	require.NoError(t, err)

	require.NoError(t, tr.Reconcile(r, 0))
	st := tr.State()
	assert.Equal(t, int64(0), st.Tick.ReservedUSD)
	assert.Equal(t, int64(0), st.Tick.SpentUSD)
}

func TestReleaseRemovesReservation(t *testing.T) {
	tr := NewTracker(1_000_000, 1_000_000)
	r, err := tr.Reserve(500_000)
	require.NoError(t, err)

	tr.Release(r)
	st := tr.State()
	assert.Equal(t, int64(0), st.Tick.ReservedUSD)
	assert.Equal(t, int64(0), st.Tick.SpentUSD)
}

func TestReconcileOvershootRespectsCeiling(t *testing.T) {
	tr := NewTracker(1_000_000, 0)
	r, err := tr.Reserve(100_000)
	require.NoError(t, err)

	err = tr.Reconcile(r, 2_000_000)
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindBudgetExceeded))
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	tr := NewTracker(1_000_000, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Reserve(30_000)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	st := tr.State()
	assert.LessOrEqual(t, st.Tick.ReservedUSD, int64(1_000_000))
	assert.Equal(t, int64(successes)*30_000, st.Tick.ReservedUSD)
}
