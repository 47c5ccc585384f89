package engine

import (
	"sync/atomic"
	"time"

	"github.com/IshaanNene/pubharvest/internal/store"
)

// State represents a run's lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats tracks the counters of one run.
type Stats struct {
	AuthorsProcessed    atomic.Int64
	AuthorsWithErrors   atomic.Int64
	PublicationsFetched atomic.Int64
	PublicationsCreated atomic.Int64
	PublicationsUpdated atomic.Int64
	PublicationsFailed  atomic.Int64
	RecordsDropped      atomic.Int64
	PagesLoaded         atomic.Int64
	StartTime           time.Time
}

// Counters converts the stats into the persisted run counters.
func (s *Stats) Counters() store.RunCounters {
	return store.RunCounters{
		AuthorsProcessed:    int(s.AuthorsProcessed.Load()),
		AuthorsWithErrors:   int(s.AuthorsWithErrors.Load()),
		PublicationsFetched: int(s.PublicationsFetched.Load()),
		PublicationsCreated: int(s.PublicationsCreated.Load()),
		PublicationsUpdated: int(s.PublicationsUpdated.Load()),
		PublicationsFailed:  int(s.PublicationsFailed.Load()),
	}
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	snap := map[string]any{
		"authors_processed":    s.AuthorsProcessed.Load(),
		"authors_with_errors":  s.AuthorsWithErrors.Load(),
		"publications_fetched": s.PublicationsFetched.Load(),
		"publications_created": s.PublicationsCreated.Load(),
		"publications_updated": s.PublicationsUpdated.Load(),
		"publications_failed":  s.PublicationsFailed.Load(),
		"records_dropped":      s.RecordsDropped.Load(),
		"pages_loaded":         s.PagesLoaded.Load(),
	}
	if !s.StartTime.IsZero() {
		snap["elapsed"] = time.Since(s.StartTime).Round(time.Second).String()
	}
	return snap
}
