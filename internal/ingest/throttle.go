package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryThrottle is the default ThrottleCache: a process-local map with TTL
// expiry. Its lifecycle is tied to the process, so the dedupe it provides is
// explicitly best-effort: a restart forgets all entries and may admit an
// occasional duplicate after a cold start. That trade-off avoids a
// read-before-write against the store on every request.
type MemoryThrottle struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	at        time.Time
	expiresAt time.Time
}

// NewMemoryThrottle creates an in-process throttle cache.
func NewMemoryThrottle(clock clockwork.Clock) *MemoryThrottle {
	return &MemoryThrottle{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryThrottle) LastAccepted(_ context.Context, deviceID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[deviceID]
	if !ok {
		return time.Time{}, false, nil
	}
	if m.clock.Now().After(e.expiresAt) {
		delete(m.entries, deviceID)
		return time.Time{}, false, nil
	}
	return e.at, true, nil
}

func (m *MemoryThrottle) MarkAccepted(_ context.Context, deviceID string, at time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[deviceID] = memoryEntry{at: at, expiresAt: at.Add(ttl)}

	// Opportunistic pruning keeps the map bounded by the active device set.
	if len(m.entries) > 1024 {
		now := m.clock.Now()
		for id, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, id)
			}
		}
	}
	return nil
}
