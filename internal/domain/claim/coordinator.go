package claim

import (
	"fmt"
	"sync"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/shared"
)

// DefaultLockTTL bounds how long an unresolved claim may hold its lock.
const DefaultLockTTL = 10 * time.Second

// Coordinator guarantees at most one in-flight claim and at most one recorded
// outcome per (token, account) pair. Outcomes are kept for the life of the
// process. The first recorded outcome wins; later ones are dropped.
type Coordinator struct {
	mu       sync.Mutex
	locks    map[Key]time.Time
	outcomes map[Key]Outcome
	lockTTL  time.Duration
	now      shared.Clock
}

// NewCoordinator creates a coordinator whose locks expire after lockTTL.
// A non-positive lockTTL uses DefaultLockTTL; a nil clock uses the system clock.
func NewCoordinator(lockTTL time.Duration, clock shared.Clock) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Coordinator{
		locks:    make(map[Key]time.Time),
		outcomes: make(map[Key]Outcome),
		lockTTL:  lockTTL,
		now:      clock.OrSystem(),
	}
}

// AttemptClaim grants the claim lock for the pair if no unexpired lock is held
// and no outcome has been recorded. Callers that are denied must not proceed.
func (c *Coordinator) AttemptClaim(token, accountID string) bool {
	key := Key{Token: token, AccountID: accountID}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, resolved := c.outcomes[key]; resolved {
		return false
	}
	if acquiredAt, held := c.locks[key]; held && !shared.IsExpired(acquiredAt, now, c.lockTTL) {
		return false
	}
	c.locks[key] = now
	return true
}

// RecordOutcome stores the outcome for the pair if none exists yet and reports
// whether it was applied. The returned Outcome is the one now on record, which
// for a duplicate is the earlier one. The lock is released in every case.
func (c *Coordinator) RecordOutcome(token, accountID string, result Result, reason string) (Outcome, bool, error) {
	if !result.IsValid() {
		return Outcome{}, false, fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}

	key := Key{Token: token, AccountID: accountID}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.locks, key)

	if existing, resolved := c.outcomes[key]; resolved {
		return existing, false, nil
	}

	outcome := Outcome{
		Token:      token,
		AccountID:  accountID,
		Result:     result,
		Reason:     reason,
		ResolvedAt: now,
	}
	c.outcomes[key] = outcome
	return outcome, true, nil
}

// Release drops the lock for the pair without recording an outcome, so the
// caller may try again. It reports whether a lock was held.
func (c *Coordinator) Release(token, accountID string) bool {
	key := Key{Token: token, AccountID: accountID}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, held := c.locks[key]
	delete(c.locks, key)
	return held
}

// Outcome returns the recorded outcome for the pair, if any.
func (c *Coordinator) Outcome(token, accountID string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.outcomes[Key{Token: token, AccountID: accountID}]
	return o, ok
}

// IsLocked reports whether an unexpired lock is held for the pair.
func (c *Coordinator) IsLocked(token, accountID string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	acquiredAt, held := c.locks[Key{Token: token, AccountID: accountID}]
	return held && !shared.IsExpired(acquiredAt, now, c.lockTTL)
}

// SweepExpiredLocks removes locks older than the TTL and returns how many were
// removed. Expired locks already stop blocking AttemptClaim; sweeping only
// reclaims memory.
func (c *Coordinator) SweepExpiredLocks() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, acquiredAt := range c.locks {
		if shared.IsExpired(acquiredAt, now, c.lockTTL) {
			delete(c.locks, key)
			removed++
		}
	}
	return removed
}

// Stats returns the number of held locks and recorded outcomes.
func (c *Coordinator) Stats() (locks, outcomes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks), len(c.outcomes)
}
