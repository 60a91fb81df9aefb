package account

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountDisabled is returned when a disabled account tries to connect
	ErrAccountDisabled = errors.New("account disabled")

	// ErrUsernameTaken is returned when creating an account with an existing username
	ErrUsernameTaken = errors.New("username already taken")

	// ErrTelegramNotLinked is returned when enabling DMs without a linked chat
	ErrTelegramNotLinked = errors.New("no telegram chat linked")
)
