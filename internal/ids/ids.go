// Package ids generates sortable, collision-resistant identifiers used
// across the orchestrator for sessions, reservations, and tool-log entries.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new lexicographically sortable ULID string.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewSession returns a session id.
func NewSession() string { return "sess_" + New() }

// NewReservation returns a reservation token id.
func NewReservation() string { return "rsv_" + New() }

// NewToolLogEntry returns a tool-log entry id.
func NewToolLogEntry() string { return "tl_" + New() }
