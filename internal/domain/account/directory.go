package account

import "context"

// Directory is the read side of the account store consulted at auth time.
type Directory interface {
	// FindByID returns the account with the given ID or ErrAccountNotFound
	FindByID(ctx context.Context, accountID string) (*Account, error)

	// FindByUsername returns the account with the given username or ErrAccountNotFound
	FindByUsername(ctx context.Context, username string) (*Account, error)
}

// Repository is the full account store used for provisioning.
type Repository interface {
	Directory

	// Create persists a new account
	Create(ctx context.Context, account *Account) error

	// Update persists changes to an existing account
	Update(ctx context.Context, account *Account) error
}
