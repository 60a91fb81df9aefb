package usecases

import (
	"context"

	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// PresenceTracker is the part of the connection registry that records
// heartbeats.
type PresenceTracker interface {
	Heartbeat(accountID string) bool
	TrackPassive(profile services.Profile)
}

// RecordHeartbeatUseCase refreshes an account's last-seen time, registering
// it as a passive (polling) connection on first contact.
type RecordHeartbeatUseCase struct {
	presence PresenceTracker
	profiles *ResolveProfileUseCase
	logger   logger.Interface
}

func NewRecordHeartbeatUseCase(presence PresenceTracker, profiles *ResolveProfileUseCase, logger logger.Interface) *RecordHeartbeatUseCase {
	return &RecordHeartbeatUseCase{
		presence: presence,
		profiles: profiles,
		logger:   logger,
	}
}

func (uc *RecordHeartbeatUseCase) Execute(ctx context.Context, accountID string) error {
	if uc.presence.Heartbeat(accountID) {
		return nil
	}

	profile, err := uc.profiles.Execute(ctx, accountID)
	if err != nil {
		return err
	}

	uc.presence.TrackPassive(profile)
	uc.logger.Debugw("passive connection tracked", "account_id", accountID)
	return nil
}
