package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	apperrors "github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type mockRepository struct {
	mockDirectory
}

func (m *mockRepository) Create(ctx context.Context, a *account.Account) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockRepository) Update(ctx context.Context, a *account.Account) error {
	return m.Called(ctx, a).Error(0)
}

type stubIssuer struct {
	err error
}

func (s stubIssuer) Generate(accountID, username string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-" + accountID + "-" + username, nil
}

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) Invalidate(accountID string) { r.ids = append(r.ids, accountID) }

type recordingPresence struct {
	profiles []services.Profile
}

func (r *recordingPresence) UpdateProfile(p services.Profile) bool {
	r.profiles = append(r.profiles, p)
	return true
}

func TestConnectAccount(t *testing.T) {
	alice := account.ReconstructAccount("acct_alice", "alice", "Alice", true, 42, true, testNow, testNow)
	bob := account.ReconstructAccount("acct_bob", "bob", "Bob", false, 0, false, testNow, testNow)

	dir := new(mockDirectory)
	dir.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	dir.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)
	dir.On("FindByUsername", mock.Anything, "ghost").Return(nil, account.ErrAccountNotFound)

	uc := NewConnectAccountUseCase(dir, stubIssuer{}, logger.NewNopLogger())

	result, err := uc.Execute(context.Background(), "  alice ")
	require.NoError(t, err)
	assert.Equal(t, "token-acct_alice-alice", result.AccessToken)
	assert.Same(t, alice, result.Account)

	_, err = uc.Execute(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.GetAppError(err).Type)

	_, err = uc.Execute(context.Background(), "bob")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeForbidden, apperrors.GetAppError(err).Type)

	_, err = uc.Execute(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetAppError(err).Type)
	dir.AssertNumberOfCalls(t, "FindByUsername", 3)
}

func TestConnectAccount_IssuerFailure(t *testing.T) {
	dir := new(mockDirectory)
	dir.On("FindByUsername", mock.Anything, "alice").
		Return(account.ReconstructAccount("acct_alice", "alice", "Alice", false, 0, true, testNow, testNow), nil)

	uc := NewConnectAccountUseCase(dir, stubIssuer{err: errors.New("no key")}, logger.NewNopLogger())

	_, err := uc.Execute(context.Background(), "alice")
	require.Error(t, err)
	assert.False(t, apperrors.IsAppError(err))
}

func TestSyncNotifications_Enable(t *testing.T) {
	repo := new(mockRepository)
	repo.On("FindByID", mock.Anything, "acct_alice").
		Return(account.ReconstructAccount("acct_alice", "alice", "Alice", false, 42, true, testNow, testNow), nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(a *account.Account) bool {
		return a.ID() == "acct_alice" && a.NotifyEnabled()
	})).Return(nil).Once()

	cache := &recordingInvalidator{}
	presence := &recordingPresence{}
	later := testNow.Add(time.Hour)
	uc := NewSyncNotificationsUseCase(repo, cache, presence, func() time.Time { return later }, logger.NewNopLogger())

	enabled, err := uc.Execute(context.Background(), "acct_alice", true)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, []string{"acct_alice"}, cache.ids)
	require.Len(t, presence.profiles, 1)
	assert.Equal(t, services.Profile{AccountID: "acct_alice", DisplayName: "Alice", NotifyEnabled: true, TelegramChatID: 42}, presence.profiles[0])
	repo.AssertExpectations(t)
}

func TestSyncNotifications_EnableWithoutTelegram(t *testing.T) {
	repo := new(mockRepository)
	repo.On("FindByID", mock.Anything, "acct_bob").
		Return(account.ReconstructAccount("acct_bob", "bob", "Bob", false, 0, true, testNow, testNow), nil)

	cache := &recordingInvalidator{}
	presence := &recordingPresence{}
	uc := NewSyncNotificationsUseCase(repo, cache, presence, func() time.Time { return testNow }, logger.NewNopLogger())

	_, err := uc.Execute(context.Background(), "acct_bob", true)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetAppError(err).Type)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Empty(t, cache.ids)
	assert.Empty(t, presence.profiles)

	repo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
	enabled, err := uc.Execute(context.Background(), "acct_bob", false)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestSyncNotifications_LookupErrors(t *testing.T) {
	repo := new(mockRepository)
	repo.On("FindByID", mock.Anything, "acct_ghost").Return(nil, account.ErrAccountNotFound)
	repo.On("FindByID", mock.Anything, "acct_off").
		Return(account.ReconstructAccount("acct_off", "off", "Off", false, 42, false, testNow, testNow), nil)

	uc := NewSyncNotificationsUseCase(repo, &recordingInvalidator{}, &recordingPresence{}, func() time.Time { return testNow }, logger.NewNopLogger())

	_, err := uc.Execute(context.Background(), "acct_ghost", false)
	assert.Equal(t, apperrors.ErrorTypeUnauthorized, apperrors.GetAppError(err).Type)

	_, err = uc.Execute(context.Background(), "acct_off", true)
	assert.Equal(t, apperrors.ErrorTypeForbidden, apperrors.GetAppError(err).Type)
}
