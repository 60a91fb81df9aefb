package code

import "errors"

var (
	// ErrInvalidToken is returned when a token is not 4-20 uppercase alphanumerics
	ErrInvalidToken = errors.New("invalid code token")

	// ErrDuplicateCode is returned when a token is already present in the cache
	ErrDuplicateCode = errors.New("code already exists")

	// ErrCodeNotFound is returned when a token is not present in the cache
	ErrCodeNotFound = errors.New("code not found")
)
