// Package budget implements the two-window (tick, day) reservation ledger.
// Every session reserves cost up front and the reservation is reconciled or
// released exactly once on terminal outcome.
package budget

import (
	"sync"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/ids"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var log = logging.ForComponent(logging.CompBudget)

// Window is one rolling accounting window (tick or day).
type Window struct {
	LimitUSD    int64 `json:"limit_usd"`
	ReservedUSD int64 `json:"reserved_usd"`
	SpentUSD    int64 `json:"spent_usd"`
}

// Remaining returns limit - reserved - spent. A zero limit is unbounded and
// reports remaining as -1 to signal "no ceiling" to callers that only care
// about the boolean question.
func (w Window) Remaining() int64 {
	if w.LimitUSD == 0 {
		return -1
	}
	return w.LimitUSD - w.ReservedUSD - w.SpentUSD
}

func (w Window) fits(amount int64) bool {
	if w.LimitUSD == 0 {
		return true
	}
	return w.ReservedUSD+w.SpentUSD+amount <= w.LimitUSD
}

// State is a point-in-time snapshot of both windows.
type State struct {
	Tick Window `json:"tick"`
	Day  Window `json:"day"`
}

// Reservation is an opaque token pairing an amount with both windows it was
// taken against. Zero value is the no-op reservation (zero-amount reserve).
type Reservation struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount_usd"`
}

// Tracker guards the two windows behind a single mutex. All state-changing
// methods are short critical sections with no I/O inside.
type Tracker struct {
	mu   sync.Mutex
	tick Window
	day  Window
}

// NewTracker creates a tracker with the given per-tick/per-day limits in
// micro-USD. A limit of 0 means unbounded.
func NewTracker(tickLimitUSD, dayLimitUSD int64) *Tracker {
	return &Tracker{
		tick: Window{LimitUSD: tickLimitUSD},
		day:  Window{LimitUSD: dayLimitUSD},
	}
}

// Reserve atomically adds amount to both windows' reserved totals, or fails
// cleanly leaving state untouched if either window would be violated.
func (t *Tracker) Reserve(amount int64) (Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tick.fits(amount) || !t.day.fits(amount) {
		log.Warn("reserve_denied", "amount_usd", amount, "tick_remaining", t.tick.Remaining(), "day_remaining", t.day.Remaining())
		return Reservation{}, claudeerr.BudgetExceeded("reservation would exceed a window ceiling")
	}

	t.tick.ReservedUSD += amount
	t.day.ReservedUSD += amount

	r := Reservation{ID: ids.NewReservation(), Amount: amount}
	log.Debug("reserved", "reservation_id", r.ID, "amount_usd", amount)
	return r, nil
}

// Reconcile swaps a reservation for its realized cost. actual may exceed the
// original reservation amount; the overshoot must still fit under the
// window's ceiling after the swap, or the reconcile fails and the
// reservation is left untouched (the caller should then fall back to
// Release if it wants to avoid leaking the reservation permanently).
func (t *Tracker) Reconcile(r Reservation, actualUSD int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tickAfter := t.tick.ReservedUSD - r.Amount + t.tick.SpentUSD + actualUSD
	dayAfter := t.day.ReservedUSD - r.Amount + t.day.SpentUSD + actualUSD

	if t.tick.LimitUSD != 0 && tickAfter > t.tick.LimitUSD {
		return claudeerr.BudgetExceeded("reconcile would exceed tick ceiling")
	}
	if t.day.LimitUSD != 0 && dayAfter > t.day.LimitUSD {
		return claudeerr.BudgetExceeded("reconcile would exceed day ceiling")
	}

	t.tick.ReservedUSD -= r.Amount
	t.tick.SpentUSD += actualUSD
	t.day.ReservedUSD -= r.Amount
	t.day.SpentUSD += actualUSD

	log.Debug("reconciled", "reservation_id", r.ID, "actual_usd", actualUSD)
	return nil
}

// Release discards a reservation with zero realized cost. Infallible.
func (t *Tracker) Release(r Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tick.ReservedUSD -= r.Amount
	t.day.ReservedUSD -= r.Amount

	log.Debug("released", "reservation_id", r.ID, "amount_usd", r.Amount)
}

// State returns a snapshot of both windows for reporting.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Tick: t.tick, Day: t.day}
}

// WithinCeilings reports whether both windows currently satisfy
// reserved+spent <= limit (zero limit always satisfies). Used by the
// orchestrator's post-reserve re-check (§4.4.1 step 12), which also tests
// the live policy's per-tick/per-day ceilings.
func (t *Tracker) WithinCeilings() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tickOK := t.tick.LimitUSD == 0 || t.tick.ReservedUSD+t.tick.SpentUSD <= t.tick.LimitUSD
	dayOK := t.day.LimitUSD == 0 || t.day.ReservedUSD+t.day.SpentUSD <= t.day.LimitUSD
	return tickOK && dayOK
}
