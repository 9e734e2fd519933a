package processor

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// InFlightTracker marks deals being processed right now and deals already
// handled recently, so one deal is never driven twice at once and a reserved
// deal is not re-driven every poll.
type InFlightTracker struct {
	mu        sync.Mutex
	inFlight  map[string]struct{}
	processed *cache.Cache
}

func NewInFlightTracker(processedTTL time.Duration) *InFlightTracker {
	return &InFlightTracker{
		inFlight:  make(map[string]struct{}),
		processed: cache.New(processedTTL, processedTTL),
	}
}

// TryAcquire claims key and reports whether it was free.
func (t *InFlightTracker) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inFlight[key]; busy {
		return false
	}
	t.inFlight[key] = struct{}{}
	return true
}

func (t *InFlightTracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, key)
}

func (t *InFlightTracker) MarkProcessed(key string) {
	t.processed.SetDefault(key, time.Now())
}

func (t *InFlightTracker) Processed(key string) bool {
	_, found := t.processed.Get(key)
	return found
}

// Clear forgets both marks for key.
func (t *InFlightTracker) Clear(key string) {
	t.Release(key)
	t.processed.Delete(key)
}
