package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// TokenIssuer signs account access tokens.
type TokenIssuer interface {
	Generate(accountID, username string) (string, error)
}

// ConnectResult is returned to a client that connected by username.
type ConnectResult struct {
	AccessToken string
	Account     *account.Account
}

// ConnectAccountUseCase exchanges a known username for an access token.
type ConnectAccountUseCase struct {
	directory account.Directory
	tokens    TokenIssuer
	logger    logger.Interface
}

func NewConnectAccountUseCase(directory account.Directory, tokens TokenIssuer, logger logger.Interface) *ConnectAccountUseCase {
	return &ConnectAccountUseCase{
		directory: directory,
		tokens:    tokens,
		logger:    logger,
	}
}

func (uc *ConnectAccountUseCase) Execute(ctx context.Context, username string) (*ConnectResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.NewValidationError("username is required")
	}

	acct, err := uc.directory.FindByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, account.ErrAccountNotFound) {
			return nil, errors.NewNotFoundError("no account for this username")
		}
		uc.logger.Errorw("failed to look up account", "username", username, "error", err)
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !acct.IsActive() {
		return nil, errors.NewForbiddenError("account disabled")
	}

	token, err := uc.tokens.Generate(acct.ID(), acct.Username())
	if err != nil {
		uc.logger.Errorw("failed to issue access token", "account_id", acct.ID(), "error", err)
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	uc.logger.Infow("account connected", "account_id", acct.ID())
	return &ConnectResult{AccessToken: token, Account: acct}, nil
}
