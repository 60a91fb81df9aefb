package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codedrop-io/codedrop/internal/domain/shared"
)

// ErrInvalidAccountToken is returned for tokens that fail verification
var ErrInvalidAccountToken = errors.New("invalid account token")

// AccountClaims identifies the account a client acts for.
type AccountClaims struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// AccountTokenService issues and verifies the bearer tokens clients present on
// the live channel and on authenticated HTTP calls.
type AccountTokenService struct {
	secret []byte
	ttl    time.Duration
	now    shared.Clock
}

// NewAccountTokenService creates a token service. A nil clock uses the system clock.
func NewAccountTokenService(secret string, ttl time.Duration, clock shared.Clock) *AccountTokenService {
	return &AccountTokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    clock.OrSystem(),
	}
}

// Generate signs a token for the account.
func (s *AccountTokenService) Generate(accountID, username string) (string, error) {
	now := s.now()

	claims := &AccountClaims{
		AccountID: accountID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign account token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token.
func (s *AccountTokenService) Verify(tokenString string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountToken, err)
	}

	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidAccountToken
	}
	return claims, nil
}
