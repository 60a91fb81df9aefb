package usecases

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// DirectoryInvalidator drops cached account entries.
type DirectoryInvalidator interface {
	Invalidate(accountID string)
}

// ProfileUpdater refreshes the profile of a tracked connection.
type ProfileUpdater interface {
	UpdateProfile(profile services.Profile) bool
}

// SyncNotificationsUseCase stores an account's DM preference and pushes it
// to the cached directory and the connection registry.
type SyncNotificationsUseCase struct {
	repo     account.Repository
	cache    DirectoryInvalidator
	presence ProfileUpdater
	clock    shared.Clock
	logger   logger.Interface
}

func NewSyncNotificationsUseCase(
	repo account.Repository,
	cache DirectoryInvalidator,
	presence ProfileUpdater,
	clock shared.Clock,
	logger logger.Interface,
) *SyncNotificationsUseCase {
	return &SyncNotificationsUseCase{
		repo:     repo,
		cache:    cache,
		presence: presence,
		clock:    clock,
		logger:   logger,
	}
}

// Execute returns the stored preference.
func (uc *SyncNotificationsUseCase) Execute(ctx context.Context, accountID string, enabled bool) (bool, error) {
	// cached accounts are shared; mutate a fresh copy
	acct, err := uc.repo.FindByID(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, account.ErrAccountNotFound) {
			return false, errors.NewUnauthorizedError("account not found")
		}
		uc.logger.Errorw("failed to load account", "account_id", accountID, "error", err)
		return false, fmt.Errorf("failed to load account: %w", err)
	}

	if !acct.IsActive() {
		return false, errors.NewForbiddenError("account disabled")
	}

	if err := acct.SetNotifications(enabled, uc.clock()); err != nil {
		if stderrors.Is(err, account.ErrTelegramNotLinked) {
			return false, errors.NewValidationError("no telegram chat linked")
		}
		return false, err
	}

	if err := uc.repo.Update(ctx, acct); err != nil {
		uc.logger.Errorw("failed to update account", "account_id", accountID, "error", err)
		return false, fmt.Errorf("failed to update account: %w", err)
	}

	uc.cache.Invalidate(accountID)
	uc.presence.UpdateProfile(ProfileFromAccount(acct))

	uc.logger.Infow("notification preference updated", "account_id", accountID, "enabled", acct.NotifyEnabled())
	return acct.NotifyEnabled(), nil
}
