package watch

import (
	"sync"
	"time"

	"github.com/HerbHall/driftwatch/pkg/drift"
)

// monitorEntry pairs a fitted drift.Monitor with its identity and a
// lock serializing updates. drift.Monitor itself is not safe for
// concurrent use.
type monitorEntry struct {
	mu sync.Mutex

	id        string
	name      string
	metric    string
	mon       *drift.Monitor
	createdAt time.Time
	updatedAt time.Time
}

// registry is the in-memory monitor table. The store is the durable
// copy; the registry is what Update paths touch.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*monitorEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*monitorEntry)}
}

func (r *registry) get(id string) (*monitorEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) put(e *monitorEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.id] = e
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// list returns a stable snapshot of the current entries.
func (r *registry) list() []*monitorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*monitorEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MonitorInfo is the API view of a monitor.
type MonitorInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Metric    string           `json:"metric,omitempty"`
	Config    drift.Config     `json:"config"`
	Bins      int              `json:"bins"`
	State     drift.DriftState `json:"state"`
	Pending   int              `json:"pending"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// info builds the API view. Callers must not hold e.mu.
func (e *monitorEntry) info() MonitorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return MonitorInfo{
		ID:        e.id,
		Name:      e.name,
		Metric:    e.metric,
		Config:    e.mon.Config(),
		Bins:      e.mon.Model().Bins(),
		State:     e.mon.Status(),
		Pending:   e.mon.Pending(),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}
