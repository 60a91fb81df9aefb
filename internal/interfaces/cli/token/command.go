// Package token mints client and feed credentials for operators and tests.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/auth"
	"github.com/codedrop-io/codedrop/internal/infrastructure/config"
	"github.com/codedrop-io/codedrop/internal/infrastructure/database"
	"github.com/codedrop-io/codedrop/internal/infrastructure/repository"
	"github.com/codedrop-io/codedrop/internal/shared/id"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

var (
	env            string
	accountRef     string
	create         bool
	displayName    string
	telegramChatID int64
	notify         bool
	feedSource     string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint client and feed tokens",
		Long: `Mint a client JWT for an account (--account) or a feed token for an
ingestion source (--feed). With --create the account is provisioned first.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVar(&accountRef, "account", "", "Account ID or username to mint a client token for")
	cmd.Flags().BoolVar(&create, "create", false, "Create the account (username = --account) if it does not exist")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name for a created account")
	cmd.Flags().Int64Var(&telegramChatID, "telegram-chat-id", 0, "Telegram chat that receives DMs for a created account")
	cmd.Flags().BoolVar(&notify, "notify", false, "Enable DMs for a created account")
	cmd.Flags().StringVar(&feedSource, "feed", "", "Feed source name to mint an ingestion token for")
	cmd.MarkFlagsMutuallyExclusive("account", "feed")
	cmd.MarkFlagsOneRequired("account", "feed")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if feedSource != "" {
		fmt.Fprintln(cmd.OutOrStdout(), auth.NewFeedTokenService(cfg.Ingest.FeedSecret).Generate(feedSource))
		return nil
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()
	if err := database.Init(&cfg.Database, log); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := repository.NewAccountRepository(database.Get(), log)
	tokens := auth.NewAccountTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL(), nil)

	var opts *CreateOptions
	if create {
		opts = &CreateOptions{
			DisplayName:    displayName,
			TelegramChatID: telegramChatID,
			Notify:         notify,
		}
	}

	a, token, err := MintAccountToken(cmd.Context(), repo, tokens, accountRef, opts, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "account %s (%s), token valid for %s\n", a.ID(), a.Username(), cfg.Auth.TokenTTL())
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// CreateOptions describes an account to provision when it does not exist.
type CreateOptions struct {
	DisplayName    string
	TelegramChatID int64
	Notify         bool
}

type tokenGenerator interface {
	Generate(accountID, username string) (string, error)
}

// MintAccountToken resolves ref as an account ID or a username and
// signs a client token for it. When opts is non-nil a missing account is
// created with ref as its username.
func MintAccountToken(ctx context.Context, repo account.Repository, tokens tokenGenerator, ref string, opts *CreateOptions, now time.Time) (*account.Account, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		a   *account.Account
		err error
	)
	if id.IsAccountID(ref) {
		a, err = repo.FindByID(ctx, ref)
	} else {
		a, err = repo.FindByUsername(ctx, ref)
	}
	if errors.Is(err, account.ErrAccountNotFound) && opts != nil {
		a, err = account.NewAccount(ref, opts.DisplayName, now)
		if err != nil {
			return nil, "", err
		}
		if opts.TelegramChatID != 0 {
			a.LinkTelegram(opts.TelegramChatID, opts.Notify, now)
		}
		err = repo.Create(ctx, a)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve account %q: %w", ref, err)
	}
	if !a.IsActive() {
		return nil, "", fmt.Errorf("account %q: %w", ref, account.ErrAccountDisabled)
	}

	token, err := tokens.Generate(a.ID(), a.Username())
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return a, token, nil
}
