package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/mappers"
	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/models"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// AccountRepository implements account.Repository
type AccountRepository struct {
	db     *gorm.DB
	logger logger.Interface
	mapper mappers.AccountMapper
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *gorm.DB, logger logger.Interface) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
		mapper: mappers.NewAccountMapper(),
	}
}

// FindByID retrieves an account by ID
func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (*account.Account, error) {
	return r.findOne(ctx, "id = ?", accountID)
}

// FindByUsername retrieves an account by username
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg string) (*account.Account, error) {
	var model models.AccountModel

	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, account.ErrAccountNotFound
		}
		r.logger.Errorw("failed to get account", "query", query, "arg", arg, "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return r.mapper.ToDomain(&model), nil
}

// Create persists a new account
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	model := r.mapper.ToModel(a)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return account.ErrUsernameTaken
		}
		r.logger.Errorw("failed to create account", "username", a.Username(), "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Update persists changes to an existing account
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	model := r.mapper.ToModel(a)

	result := r.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"display_name":     model.DisplayName,
			"notify_enabled":   model.NotifyEnabled,
			"telegram_chat_id": model.TelegramChatID,
			"active":           model.Active,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update account", "account_id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// isUniqueViolation covers both the MySQL and SQLite duplicate key messages.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint failed")
}
