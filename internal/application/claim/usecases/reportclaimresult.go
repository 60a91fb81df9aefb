package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// OutcomeRecorder records claim resolutions exactly once.
type OutcomeRecorder interface {
	RecordOutcome(token, accountID string, result claim.Result, reason string) (claim.Outcome, bool, error)
}

// ProfileLookup resolves the notification profile of an account.
type ProfileLookup interface {
	Execute(ctx context.Context, accountID string) (services.Profile, error)
}

// ClaimResultNotifier announces a newly recorded outcome.
type ClaimResultNotifier interface {
	NotifyClaimResult(outcome claim.Outcome, recipient services.Profile, value, source string)
}

type ReportClaimResultCommand struct {
	AccountID string
	Token     string
	Success   bool
	Reason    string
	Value     string
	Source    string
}

type ReportClaimResultResult struct {
	// Applied is false when an earlier result for the same code and account
	// was already on record. Outcome is always the recorded one.
	Applied  bool
	Outcome  claim.Outcome
	Notified bool
}

// ReportClaimResultUseCase records the outcome of a client's claim attempt.
// Results can arrive more than once, from the live channel and from HTTP;
// only the first is applied and notified.
type ReportClaimResultUseCase struct {
	recorder OutcomeRecorder
	profiles ProfileLookup
	notifier ClaimResultNotifier
	logger   logger.Interface
}

func NewReportClaimResultUseCase(
	recorder OutcomeRecorder,
	profiles ProfileLookup,
	notifier ClaimResultNotifier,
	logger logger.Interface,
) *ReportClaimResultUseCase {
	return &ReportClaimResultUseCase{
		recorder: recorder,
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
	}
}

func (uc *ReportClaimResultUseCase) Execute(ctx context.Context, cmd ReportClaimResultCommand) (*ReportClaimResultResult, error) {
	token := strings.ToUpper(strings.TrimSpace(cmd.Token))
	if !code.IsValidToken(token) {
		return nil, errors.NewValidationError("invalid code", fmt.Sprintf("%q is not a valid code", cmd.Token))
	}
	if cmd.AccountID == "" {
		return nil, errors.NewUnauthorizedError("account required")
	}

	outcome, applied, err := uc.recorder.RecordOutcome(token, cmd.AccountID, claim.ResultFromBool(cmd.Success), strings.TrimSpace(cmd.Reason))
	if err != nil {
		return nil, fmt.Errorf("failed to record claim outcome: %w", err)
	}

	result := &ReportClaimResultResult{Applied: applied, Outcome: outcome}
	if !applied {
		uc.logger.Infow("duplicate claim result ignored",
			"account_id", cmd.AccountID,
			"code", token,
			"recorded_result", outcome.Result,
			"reported_success", cmd.Success,
		)
		return result, nil
	}

	uc.logger.Infow("claim result recorded",
		"account_id", cmd.AccountID,
		"code", token,
		"result", outcome.Result,
		"reason", outcome.Reason,
		"source", cmd.Source,
	)

	if uc.notifier == nil {
		return result, nil
	}

	profile, err := uc.profiles.Execute(ctx, cmd.AccountID)
	if err != nil {
		// The outcome stands; only the notification is lost.
		uc.logger.Warnw("claim result notification skipped, profile unavailable",
			"account_id", cmd.AccountID,
			"error", err,
		)
		return result, nil
	}

	uc.notifier.NotifyClaimResult(outcome, profile, cmd.Value, cmd.Source)
	result.Notified = profile.NotifyEnabled && profile.TelegramChatID != 0
	return result, nil
}
