// Package timers tracks at most one live cancellable timer per session.
// Arming a session replaces any existing timer; cancelling is idempotent and
// safe against a concurrently firing timer.
package timers

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type entry struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// Registry holds the active timers keyed by session ID.
type Registry struct {
	clock clockwork.Clock

	mu     sync.Mutex
	active map[uuid.UUID]*entry
}

// NewRegistry creates a timer registry on the given clock. Production uses
// clockwork.NewRealClock(); tests use a fake clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:  clock,
		active: make(map[uuid.UUID]*entry),
	}
}

// Arm schedules fn to run after d, replacing any timer already armed for the
// session. The callback runs on its own goroutine. If the timer is cancelled
// before the callback begins, the callback never runs.
func (r *Registry) Arm(id uuid.UUID, d time.Duration, fn func()) {
	e := &entry{
		stop: make(chan struct{}),
	}

	r.mu.Lock()
	if old, exists := r.active[id]; exists {
		close(old.stop)
		stopAndDrainTimer(old.timer)
		log.Debug().Str("session_id", id.String()).Msg("replaced existing timer")
	}
	e.timer = r.clock.NewTimer(d)
	r.active[id] = e
	r.mu.Unlock()

	go r.wait(id, e, fn)
}

func (r *Registry) wait(id uuid.UUID, e *entry, fn func()) {
	select {
	case <-e.timer.Chan():
		// The timer fired, but a concurrent Cancel or re-Arm may have won.
		// Only the entry still registered for this session may run.
		r.mu.Lock()
		current := r.active[id] == e
		if current {
			delete(r.active, id)
		}
		r.mu.Unlock()
		if current {
			fn()
		}
	case <-e.stop:
	}
}

// Cancel removes and stops the session's timer. Calling it for an unknown,
// already-fired or already-cancelled session is a no-op.
func (r *Registry) Cancel(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.active[id]; exists {
		delete(r.active, id)
		close(e.stop)
		stopAndDrainTimer(e.timer)
		log.Debug().Str("session_id", id.String()).Msg("cancelled timer")
	}
}

// Active reports whether the session currently has a live timer.
func (r *Registry) Active(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.active[id]
	return exists
}

// Stop cancels every remaining timer. Used on shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.active {
		close(e.stop)
		stopAndDrainTimer(e.timer)
		log.Debug().Str("session_id", id.String()).Msg("cancelled timer on shutdown")
	}
	r.active = make(map[uuid.UUID]*entry)
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
