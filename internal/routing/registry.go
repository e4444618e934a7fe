package routing

import (
	"sync"
	"time"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
)

// Record is the authoritative statement of the current active region and its
// primary endpoints. Version is monotonic; it increases by one per successful
// swap and never changes otherwise.
type Record struct {
	ActiveRegion      failover.Region `json:"active_region"`
	RelationalPrimary string          `json:"relational_primary_endpoint"`
	CacheMaster       string          `json:"cache_master_endpoint"`
	Version           uint64          `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Registry holds the process-wide routing record. Reads return snapshots and
// are safe for any number of concurrent readers; Swap is restricted to a
// single writer at a time.
type Registry struct {
	mu     sync.RWMutex
	swapMu sync.Mutex
	record Record
}

// NewRegistry creates a registry seeded from static configuration.
// The initial record gets version 1.
func NewRegistry(activeRegion failover.Region, relationalPrimary, cacheMaster string) *Registry {
	return &Registry{
		record: Record{
			ActiveRegion:      activeRegion,
			RelationalPrimary: relationalPrimary,
			CacheMaster:       cacheMaster,
			Version:           1,
			UpdatedAt:         time.Now().UTC(),
		},
	}
}

// Read returns a self-consistent snapshot of the current record
func (r *Registry) Read() Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.record
}

// Swap atomically replaces the active region and both endpoints, increments
// the version and stamps the update time. A second swap arriving while one is
// in progress is refused with routing_update_failed (busy) rather than queued.
func (r *Registry) Swap(activeRegion failover.Region, relationalPrimary, cacheMaster string) (Record, *failover.Error) {
	if !r.swapMu.TryLock() {
		return Record{}, failover.NewError(failover.KindRoutingUpdateFailed, "registry busy: concurrent swap in progress")
	}
	defer r.swapMu.Unlock()

	r.mu.Lock()
	r.record = Record{
		ActiveRegion:      activeRegion,
		RelationalPrimary: relationalPrimary,
		CacheMaster:       cacheMaster,
		Version:           r.record.Version + 1,
		UpdatedAt:         time.Now().UTC(),
	}
	snapshot := r.record
	r.mu.Unlock()

	return snapshot, nil
}
