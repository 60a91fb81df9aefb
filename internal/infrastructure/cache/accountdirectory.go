package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
)

const (
	// DefaultDirectoryCacheSize bounds the number of cached accounts
	DefaultDirectoryCacheSize = 4096
	// DefaultDirectoryCacheTTL is how long a cached account is trusted
	DefaultDirectoryCacheTTL = 5 * time.Minute
)

type directoryEntry struct {
	account  *account.Account
	cachedAt time.Time
}

// CachedDirectory fronts an account.Directory with a bounded LRU keyed by
// account ID. Concurrent misses for the same key share one lookup, so a burst
// of reconnects after a deploy does not stampede the database.
type CachedDirectory struct {
	next       account.Directory
	byID       *lru.Cache[string, directoryEntry]
	usernames  *lru.Cache[string, string] // username -> account ID
	ttl        time.Duration
	now        shared.Clock
	fetchGroup singleflight.Group
}

// NewCachedDirectory wraps next. Non-positive size or ttl use the defaults.
func NewCachedDirectory(next account.Directory, size int, ttl time.Duration, clock shared.Clock) (*CachedDirectory, error) {
	if size <= 0 {
		size = DefaultDirectoryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDirectoryCacheTTL
	}

	byID, err := lru.New[string, directoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create account cache: %w", err)
	}
	usernames, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create username cache: %w", err)
	}

	return &CachedDirectory{
		next:      next,
		byID:      byID,
		usernames: usernames,
		ttl:       ttl,
		now:       clock.OrSystem(),
	}, nil
}

// FindByID returns the account, serving fresh cache hits without a lookup.
func (d *CachedDirectory) FindByID(ctx context.Context, accountID string) (*account.Account, error) {
	if a, ok := d.lookup(accountID); ok {
		return a, nil
	}

	result, err, _ := d.fetchGroup.Do("id:"+accountID, func() (any, error) {
		if a, ok := d.lookup(accountID); ok {
			return a, nil
		}
		a, err := d.next.FindByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		d.store(a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*account.Account), nil
}

// FindByUsername resolves the username to an ID through the cache when it
// can, and falls through to the wrapped directory otherwise.
func (d *CachedDirectory) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	if accountID, ok := d.usernames.Get(username); ok {
		if a, ok := d.lookup(accountID); ok {
			return a, nil
		}
	}

	result, err, _ := d.fetchGroup.Do("username:"+username, func() (any, error) {
		a, err := d.next.FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		d.store(a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*account.Account), nil
}

// Invalidate drops the cached account so the next lookup refetches it.
func (d *CachedDirectory) Invalidate(accountID string) {
	if e, ok := d.byID.Peek(accountID); ok {
		d.usernames.Remove(e.account.Username())
	}
	d.byID.Remove(accountID)
}

// Len returns the number of cached accounts.
func (d *CachedDirectory) Len() int {
	return d.byID.Len()
}

func (d *CachedDirectory) lookup(accountID string) (*account.Account, bool) {
	e, ok := d.byID.Get(accountID)
	if !ok {
		return nil, false
	}
	if shared.IsExpired(e.cachedAt, d.now(), d.ttl) {
		d.byID.Remove(accountID)
		return nil, false
	}
	return e.account, true
}

func (d *CachedDirectory) store(a *account.Account) {
	d.byID.Add(a.ID(), directoryEntry{account: a, cachedAt: d.now()})
	d.usernames.Add(a.Username(), a.ID())
}
