// Package account models the client accounts that receive codes. Accounts are
// owned by an external directory; this service only reads them, apart from the
// provisioning command.
package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/codedrop-io/codedrop/internal/shared/id"
)

// Account is a client account as seen by the distribution core.
type Account struct {
	id             string // Stripe-style ID: acct_xxx
	username       string
	displayName    string
	notifyEnabled  bool  // per-user DM preference
	telegramChatID int64 // 0 when not linked
	active         bool
	createdAt      time.Time
	updatedAt      time.Time
}

// NewAccount creates an active account with a generated ID.
func NewAccount(username, displayName string, now time.Time) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if displayName == "" {
		displayName = username
	}

	accountID, err := id.NewAccountID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account ID: %w", err)
	}

	return &Account{
		id:          accountID,
		username:    username,
		displayName: displayName,
		active:      true,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructAccount reconstructs an Account from the persistence layer
func ReconstructAccount(
	accountID string,
	username string,
	displayName string,
	notifyEnabled bool,
	telegramChatID int64,
	active bool,
	createdAt, updatedAt time.Time,
) *Account {
	return &Account{
		id:             accountID,
		username:       username,
		displayName:    displayName,
		notifyEnabled:  notifyEnabled,
		telegramChatID: telegramChatID,
		active:         active,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// Getters
func (a *Account) ID() string            { return a.id }
func (a *Account) Username() string      { return a.username }
func (a *Account) DisplayName() string   { return a.displayName }
func (a *Account) NotifyEnabled() bool   { return a.notifyEnabled }
func (a *Account) TelegramChatID() int64 { return a.telegramChatID }
func (a *Account) IsActive() bool        { return a.active }
func (a *Account) CreatedAt() time.Time  { return a.createdAt }
func (a *Account) UpdatedAt() time.Time  { return a.updatedAt }

// CanReceiveNotifications reports whether DMs should be sent to this account.
func (a *Account) CanReceiveNotifications() bool {
	return a.notifyEnabled && a.telegramChatID != 0
}

// LinkTelegram sets the chat that receives DMs and the DM preference.
func (a *Account) LinkTelegram(chatID int64, notify bool, now time.Time) {
	a.telegramChatID = chatID
	a.notifyEnabled = notify && chatID != 0
	a.updatedAt = now
}

// SetNotifications toggles the DM preference. Enabling requires a linked chat.
func (a *Account) SetNotifications(enabled bool, now time.Time) error {
	if enabled && a.telegramChatID == 0 {
		return ErrTelegramNotLinked
	}
	a.notifyEnabled = enabled
	a.updatedAt = now
	return nil
}

// Disable prevents the account from authenticating.
func (a *Account) Disable(now time.Time) {
	a.active = false
	a.updatedAt = now
}

// Enable allows the account to authenticate again.
func (a *Account) Enable(now time.Time) {
	a.active = true
	a.updatedAt = now
}

// Rename changes the display name. An empty name falls back to the username.
func (a *Account) Rename(displayName string, now time.Time) {
	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = a.username
	}
	a.displayName = displayName
	a.updatedAt = now
}
