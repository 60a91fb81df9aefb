package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// notifyKeyPrefix is the prefix for all notification cooldown keys
	notifyKeyPrefix = "notify_cooldown:"
	// DefaultNotifyCooldown keeps a flapping connection from spamming DMs
	DefaultNotifyCooldown = 2 * time.Minute
)

// NotifyKind represents the notification kinds subject to cooldown
type NotifyKind string

const (
	NotifyKindConnected    NotifyKind = "connected"
	NotifyKindDisconnected NotifyKind = "disconnected"
)

// NotifyCooldown provides Redis-based notification deduplication
type NotifyCooldown struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNotifyCooldown creates a new NotifyCooldown instance
func NewNotifyCooldown(client *redis.Client, ttl time.Duration) *NotifyCooldown {
	if ttl <= 0 {
		ttl = DefaultNotifyCooldown
	}
	return &NotifyCooldown{client: client, ttl: ttl}
}

// buildKey builds the Redis key for notification cooldown
// Format: notify_cooldown:{kind}:{account_id}
func (d *NotifyCooldown) buildKey(kind NotifyKind, accountID string) string {
	return fmt.Sprintf("%s%s:%s", notifyKeyPrefix, kind, accountID)
}

// TryAcquire atomically checks and starts a cooldown using SetNX.
// Returns true if the notification should be sent, false if still cooling down.
func (d *NotifyCooldown) TryAcquire(ctx context.Context, kind NotifyKind, accountID string) (bool, error) {
	key := d.buildKey(kind, accountID)

	acquired, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire notify cooldown: %w", err)
	}

	return acquired, nil
}

// Clear removes the cooldown for the given account
func (d *NotifyCooldown) Clear(ctx context.Context, kind NotifyKind, accountID string) error {
	key := d.buildKey(kind, accountID)

	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear notify cooldown: %w", err)
	}

	return nil
}

// RemainingCooldown returns the remaining cooldown time.
// Returns 0 if not in cooldown
func (d *NotifyCooldown) RemainingCooldown(ctx context.Context, kind NotifyKind, accountID string) (time.Duration, error) {
	key := d.buildKey(kind, accountID)

	ttl, err := d.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get cooldown: %w", err)
	}

	// TTL returns -2 if key doesn't exist, -1 if no TTL set
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}
