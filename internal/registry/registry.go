// Package registry maps session-id -> (provider-id, reservation,
// reconciled-flag), the single source of truth the orchestrator consults to
// find which provider owns a session and whether its budget reservation has
// already been settled.
package registry

import (
	"sync"

	"github.com/asheshgoplani/claude-orchestrator/internal/budget"
	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
)

var log = logging.ForComponent(logging.CompRegistry)

// Entry is one session's registry record (§3).
type Entry struct {
	SessionID   string
	ProviderID  string
	Reservation budget.Reservation
	Reconciled  bool
}

// Registry is a reader-writer map. Read operations take a read lock long
// enough to fetch an entry copy; mutations take a write lock briefly
// (§5 Locking discipline).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Insert records a brand new, unreconciled session.
func (r *Registry) Insert(sessionID, providerID string, reservation budget.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = &Entry{
		SessionID:   sessionID,
		ProviderID:  providerID,
		Reservation: reservation,
		Reconciled:  false,
	}
	log.Debug("registry_insert", "session_id", sessionID, "provider_id", providerID)
}

// Get returns a copy of the entry for sessionID.
func (r *Registry) Get(sessionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// MarkReconciled flips reconciled to true. Returns false if it was already
// true (at-most-once guarantee, §4.4.2).
func (r *Registry) MarkReconciled(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok || e.Reconciled {
		return false
	}
	e.Reconciled = true
	return true
}

// CountNonTerminal counts entries whose session the provided predicate
// reports as non-terminal. isTerminal typically issues a provider call
// (§5: never hold a registry lock across one), so the id/provider-id pairs
// are snapshotted under the read lock and the predicate runs after it is
// released.
func (r *Registry) CountNonTerminal(isTerminal func(sessionID, providerID string) bool) int {
	r.mu.RLock()
	pairs := make([][2]string, 0, len(r.entries))
	for id, e := range r.entries {
		pairs = append(pairs, [2]string{id, e.ProviderID})
	}
	r.mu.RUnlock()

	count := 0
	for _, pair := range pairs {
		if !isTerminal(pair[0], pair[1]) {
			count++
		}
	}
	return count
}

// ProviderIDFor returns the provider id owning sessionID, used by the
// router's resume-session-id rule (§4.2 step 1).
func (r *Registry) ProviderIDFor(sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return "", claudeerr.NotFound("session not found in registry")
	}
	return e.ProviderID, nil
}

// Remove deletes a registry entry. Nothing in the orchestrator calls it:
// fork leaves the parent entry in place, and the normal terminal path leaves
// the entry present with reconciled=true per §3's lifecycle summary.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}
