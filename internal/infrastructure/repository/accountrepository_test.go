package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/models"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.AccountModel{})
	require.NoError(t, err)

	return db
}

func TestAccountRepository_CreateAndFind(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t), logger.NewNopLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	a, err := account.NewAccount("alice", "Alice", now)
	require.NoError(t, err)
	a.LinkTelegram(4242, true, now)
	require.NoError(t, repo.Create(ctx, a))

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, a.ID())
		require.NoError(t, err)
		assert.Equal(t, "alice", found.Username())
		assert.Equal(t, "Alice", found.DisplayName())
		assert.Equal(t, int64(4242), found.TelegramChatID())
		assert.True(t, found.CanReceiveNotifications())
	})

	t.Run("find by username", func(t *testing.T) {
		found, err := repo.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, a.ID(), found.ID())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "acct_missing")
		assert.ErrorIs(t, err, account.ErrAccountNotFound)
		_, err = repo.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, account.ErrAccountNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup, err := account.NewAccount("alice", "Other", now)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), account.ErrUsernameTaken)
	})
}

func TestAccountRepository_Update(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t), logger.NewNopLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := account.NewAccount("bob", "Bob", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))

	a.Disable(now)
	require.NoError(t, repo.Update(ctx, a))

	found, err := repo.FindByID(ctx, a.ID())
	require.NoError(t, err)
	assert.False(t, found.IsActive())

	ghost := account.ReconstructAccount("acct_ghost", "ghost", "Ghost", false, 0, true, now, now)
	assert.ErrorIs(t, repo.Update(ctx, ghost), account.ErrAccountNotFound)
}
