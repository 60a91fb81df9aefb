package cache

import (
	"sync"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
)

const (
	// DefaultCodeRetention is how long a code stays visible after it was observed
	DefaultCodeRetention = 5 * time.Minute
	// DefaultMaxCodes bounds the cache size regardless of age
	DefaultMaxCodes = 500
)

// CodeCache is the bounded, time-expiring store of recently observed codes.
// It is the only de-duplication authority: a token present in the cache is
// rejected by Put no matter how old the entry is, until Evict or Delete drops it.
// Codes pushed out by the size bound leave a tombstone that keeps rejecting
// their token until the retention window has passed.
type CodeCache struct {
	mu         sync.RWMutex
	byToken    map[string]*code.Code
	order      []*code.Code // oldest first
	tombstones map[string]time.Time // token -> ObservedAt
	retention  time.Duration
	maxEntries int
	now        shared.Clock
}

// NewCodeCache creates a cache. Non-positive retention or maxEntries fall back
// to the defaults; a nil clock uses the system clock.
func NewCodeCache(retention time.Duration, maxEntries int, clock shared.Clock) *CodeCache {
	if retention <= 0 {
		retention = DefaultCodeRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCodes
	}
	return &CodeCache{
		byToken:    make(map[string]*code.Code),
		tombstones: make(map[string]time.Time),
		order:      make([]*code.Code, 0, 64),
		retention:  retention,
		maxEntries: maxEntries,
		now:        clock.OrSystem(),
	}
}

// Put stores c and returns true, or returns false if the token is already cached.
func (cc *CodeCache) Put(c code.Code) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if _, exists := cc.byToken[c.Token]; exists {
		return false
	}
	if _, buried := cc.tombstones[c.Token]; buried {
		return false
	}

	stored := c
	cc.byToken[c.Token] = &stored
	cc.order = append(cc.order, &stored)

	if overflow := len(cc.order) - cc.maxEntries; overflow > 0 {
		now := cc.now()
		for _, old := range cc.order[:overflow] {
			delete(cc.byToken, old.Token)
			if old.Age(now) < cc.retention {
				cc.tombstones[old.Token] = old.ObservedAt
			}
		}
		cc.order = append(cc.order[:0:0], cc.order[overflow:]...)
	}
	return true
}

// Snapshot returns the unexpired codes, newest first.
func (cc *CodeCache) Snapshot() []code.Code {
	now := cc.now()

	cc.mu.RLock()
	defer cc.mu.RUnlock()

	out := make([]code.Code, 0, len(cc.order))
	for i := len(cc.order) - 1; i >= 0; i-- {
		c := cc.order[i]
		if c.Age(now) >= cc.retention {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Get returns the cached code for token.
func (cc *CodeCache) Get(token string) (code.Code, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	c, ok := cc.byToken[token]
	if !ok {
		return code.Code{}, false
	}
	return *c, true
}

// Enrich fills in the metadata of a cached code that has none yet. It reports
// false if the token is gone or already carries metadata.
func (cc *CodeCache) Enrich(token string, meta code.Metadata) (code.Code, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	c, ok := cc.byToken[token]
	if !ok || !c.Metadata.IsEmpty() || meta.IsEmpty() {
		return code.Code{}, false
	}
	// Entries are replaced rather than mutated so that snapshots taken
	// earlier keep the value they copied.
	enriched := *c
	enriched.Metadata = meta
	cc.byToken[token] = &enriched
	for i, o := range cc.order {
		if o == c {
			cc.order[i] = &enriched
			break
		}
	}
	return enriched, true
}

// Delete removes token and reports whether it was present.
func (cc *CodeCache) Delete(token string) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if _, buried := cc.tombstones[token]; buried {
		delete(cc.tombstones, token)
		return true
	}
	c, ok := cc.byToken[token]
	if !ok {
		return false
	}
	delete(cc.byToken, token)
	for i, o := range cc.order {
		if o == c {
			cc.order = append(cc.order[:i], cc.order[i+1:]...)
			break
		}
	}
	return true
}

// Evict drops codes older than the retention window and returns how many
// were removed.
func (cc *CodeCache) Evict() int {
	now := cc.now()

	cc.mu.Lock()
	defer cc.mu.Unlock()

	kept := cc.order[:0]
	removed := 0
	for _, c := range cc.order {
		if c.Age(now) >= cc.retention {
			delete(cc.byToken, c.Token)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(cc.order); i++ {
		cc.order[i] = nil
	}
	cc.order = kept

	for token, observedAt := range cc.tombstones {
		if now.Sub(observedAt) >= cc.retention {
			delete(cc.tombstones, token)
		}
	}
	return removed
}

// Len returns the number of cached codes, expired or not.
func (cc *CodeCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.order)
}
