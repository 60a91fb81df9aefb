package mappers

import (
	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/models"
)

// AccountMapper provides methods for converting between domain and model
type AccountMapper interface {
	ToDomain(model *models.AccountModel) *account.Account
	ToModel(domain *account.Account) *models.AccountModel
}

// AccountMapperImpl implements AccountMapper
type AccountMapperImpl struct{}

// NewAccountMapper creates a new AccountMapper
func NewAccountMapper() AccountMapper {
	return &AccountMapperImpl{}
}

// ToDomain converts an AccountModel to an Account domain entity
func (m *AccountMapperImpl) ToDomain(model *models.AccountModel) *account.Account {
	if model == nil {
		return nil
	}

	return account.ReconstructAccount(
		model.ID,
		model.Username,
		model.DisplayName,
		model.NotifyEnabled,
		model.TelegramChatID,
		model.Active,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// ToModel converts an Account domain entity to an AccountModel
func (m *AccountMapperImpl) ToModel(domain *account.Account) *models.AccountModel {
	if domain == nil {
		return nil
	}

	return &models.AccountModel{
		ID:             domain.ID(),
		Username:       domain.Username(),
		DisplayName:    domain.DisplayName(),
		NotifyEnabled:  domain.NotifyEnabled(),
		TelegramChatID: domain.TelegramChatID(),
		Active:         domain.IsActive(),
		CreatedAt:      domain.CreatedAt(),
		UpdatedAt:      domain.UpdatedAt(),
	}
}
