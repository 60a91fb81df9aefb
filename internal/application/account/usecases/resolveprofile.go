package usecases

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// ResolveProfileUseCase loads the connection profile of an authenticated
// account from the account directory.
type ResolveProfileUseCase struct {
	directory account.Directory
	logger    logger.Interface
}

func NewResolveProfileUseCase(directory account.Directory, logger logger.Interface) *ResolveProfileUseCase {
	return &ResolveProfileUseCase{
		directory: directory,
		logger:    logger,
	}
}

func (uc *ResolveProfileUseCase) Execute(ctx context.Context, accountID string) (services.Profile, error) {
	acct, err := uc.directory.FindByID(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, account.ErrAccountNotFound) {
			return services.Profile{}, errors.NewUnauthorizedError("account not found")
		}
		uc.logger.Errorw("failed to load account", "account_id", accountID, "error", err)
		return services.Profile{}, fmt.Errorf("failed to load account: %w", err)
	}

	if !acct.IsActive() {
		return services.Profile{}, errors.NewForbiddenError("account disabled")
	}

	return ProfileFromAccount(acct), nil
}

// ProfileFromAccount copies the fields a connection needs.
func ProfileFromAccount(a *account.Account) services.Profile {
	name := a.DisplayName()
	if name == "" {
		name = a.Username()
	}
	return services.Profile{
		AccountID:      a.ID(),
		DisplayName:    name,
		NotifyEnabled:  a.NotifyEnabled(),
		TelegramChatID: a.TelegramChatID(),
	}
}
