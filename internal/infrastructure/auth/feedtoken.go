package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// FeedTokenPrefix is the prefix for ingestion feed tokens.
	FeedTokenPrefix = "feed"

	// feedSigLen is the encoded length of a 16-byte signature.
	feedSigLen = 22
)

// FeedTokenService handles generation and verification of HMAC-based tokens
// presented by ingestion producers.
// Token format: feed_<source>_<signature>
// Signature: base64url(HMAC-SHA256(secret, "feed_" + source)[:16])
type FeedTokenService struct {
	secret []byte
}

// NewFeedTokenService creates a new FeedTokenService with the given signing secret.
func NewFeedTokenService(secret string) *FeedTokenService {
	return &FeedTokenService{
		secret: []byte(secret),
	}
}

// Generate creates a token for the given feed source name.
func (s *FeedTokenService) Generate(source string) string {
	return fmt.Sprintf("%s_%s_%s", FeedTokenPrefix, source, s.computeSignature(source))
}

// Verify validates a token and returns the feed source if valid.
// This can be done locally without server round-trip.
func (s *FeedTokenService) Verify(token string) (source string, err error) {
	if token == "" {
		return "", errors.New("token cannot be empty")
	}

	// The signature has a fixed length and may itself contain '_', so it is
	// cut from the end rather than split on separators.
	rest, ok := strings.CutPrefix(token, FeedTokenPrefix+"_")
	if !ok {
		return "", errors.New("invalid token prefix")
	}
	if len(rest) < feedSigLen+2 || rest[len(rest)-feedSigLen-1] != '_' {
		return "", errors.New("invalid token format")
	}

	source = rest[:len(rest)-feedSigLen-1]
	providedSig := rest[len(rest)-feedSigLen:]

	expectedSig := s.computeSignature(source)
	if !hmac.Equal([]byte(providedSig), []byte(expectedSig)) {
		return "", errors.New("invalid token signature")
	}

	return source, nil
}

// computeSignature computes the HMAC signature for a given source.
func (s *FeedTokenService) computeSignature(source string) string {
	data := fmt.Sprintf("%s_%s", FeedTokenPrefix, source)
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	sig := h.Sum(nil)
	// Truncate to 16 bytes and encode
	return base64.RawURLEncoding.EncodeToString(sig[:16])
}
