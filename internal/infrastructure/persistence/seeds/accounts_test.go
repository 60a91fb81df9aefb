package seeds

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/models"
	"github.com/codedrop-io/codedrop/internal/infrastructure/repository"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const seedDoc = `
accounts:
  - username: alice
    display_name: Alice
    telegram_chat_id: 1001
    notify: true
  - username: bob
    active: false
`

func newRepo(t *testing.T) *repository.AccountRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.AccountModel{}))
	return repository.NewAccountRepository(db, logger.NewNopLogger())
}

func TestParseAccountSeeds(t *testing.T) {
	file, err := ParseAccountSeeds(strings.NewReader(seedDoc))
	require.NoError(t, err)
	require.Len(t, file.Accounts, 2)
	assert.Equal(t, int64(1001), file.Accounts[0].TelegramChatID)
	require.NotNil(t, file.Accounts[1].Active)
	assert.False(t, *file.Accounts[1].Active)

	_, err = ParseAccountSeeds(strings.NewReader("accounts:\n  - display_name: nobody\n"))
	assert.ErrorContains(t, err, "username is required")

	_, err = ParseAccountSeeds(strings.NewReader("accounts:\n  - username: a\n    colour: red\n"))
	assert.Error(t, err)

	_, err = ParseAccountSeeds(strings.NewReader("accounts:\n  - username: a\n  - username: a\n"))
	assert.ErrorContains(t, err, "more than once")

	empty, err := ParseAccountSeeds(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Accounts)
}

func TestSeedAccounts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newRepo(t)

	file, err := ParseAccountSeeds(strings.NewReader(seedDoc))
	require.NoError(t, err)

	report, err := SeedAccounts(ctx, repo, file, now)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Created: 2}, report)

	alice, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.DisplayName())
	assert.True(t, alice.CanReceiveNotifications())
	assert.True(t, alice.IsActive())

	bob, err := repo.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.DisplayName())
	assert.False(t, bob.IsActive())

	// A second run converges instead of duplicating.
	file.Accounts[1].Active = nil
	report, err = SeedAccounts(ctx, repo, file, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Updated: 2}, report)

	bob, err = repo.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.IsActive())
}
