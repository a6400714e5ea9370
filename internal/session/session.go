package session

import (
	"sync"
	"time"

	models "tajpado/internal/models"
	typing "tajpado/internal/typing"
	util "tajpado/internal/util"
)

// Registry holds the active typing session per user. Input events and the
// once-per-second tick both mutate session state under the registry mutex,
// so a tick can never interleave with the completing keystroke.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionState
	ttl      time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*models.SessionState),
		ttl:      ttl,
	}
}

// Put replaces the user's active session. A replaced unfinished session is
// simply dropped; partial sessions are never persisted.
func (r *Registry) Put(userID string, state *models.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok && !old.Finished {
		util.LogInfo("Discarding unfinished session for user %s", userID)
	}
	state.LastAccessTime = time.Now()
	r.sessions[userID] = state
}

// With runs fn against the user's active session while holding the registry
// lock. Returns false without calling fn when the user has no session.
func (r *Registry) With(userID string, fn func(state *models.SessionState)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[userID]
	if !ok {
		return false
	}
	state.LastAccessTime = time.Now()
	fn(state)
	return true
}

func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TickAll advances the clock of every running session by one second.
func (r *Registry) TickAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.sessions {
		typing.Tick(state)
	}
}

// CleanupStale evicts sessions idle past the TTL. Finalized sessions are
// already persisted; unfinished ones are abandoned and discarded.
func (r *Registry) CleanupStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoffTime := time.Now().Add(-r.ttl)
	removedCount := 0

	for userID, state := range r.sessions {
		if state.LastAccessTime.Before(cutoffTime) {
			delete(r.sessions, userID)
			removedCount++
		}
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale typing sessions", removedCount)
	}
}

// StartTickLoop drives session clocks at 1 Hz until stop is closed.
func (r *Registry) StartTickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.TickAll()
			case <-stop:
				return
			}
		}
	}()
	util.LogInfo("Started session tick loop")
}

// StartCleanup evicts stale sessions on a fixed interval.
func (r *Registry) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.CleanupStale()
			case <-stop:
				return
			}
		}
	}()
	util.LogInfo("Started session cleanup goroutine")
}
