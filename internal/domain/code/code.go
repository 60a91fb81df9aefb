// Package code holds the promo code value object and the text extractor that
// produces it.
package code

import (
	"fmt"
	"regexp"
	"time"
)

// Source identifies how a code entered the system.
type Source string

const (
	SourceAdmin  Source = "admin"
	SourceIngest Source = "ingest"
	SourceManual Source = "manual"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceAdmin, SourceIngest, SourceManual:
		return true
	}
	return false
}

var tokenPattern = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)

// IsValidToken reports whether token is 4-20 uppercase letters or digits.
func IsValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Metadata is the optional descriptive data attached to a code. Every field is
// best-effort and may stay empty.
type Metadata struct {
	Value            string `json:"value,omitempty"`
	ClaimLimit       string `json:"limit,omitempty"`
	WagerRequirement string `json:"wagerRequirement,omitempty"`
	Timeline         string `json:"timeline,omitempty"`
}

// IsEmpty reports whether no metadata field is set.
func (m Metadata) IsEmpty() bool {
	return m == Metadata{}
}

// Code is an observed promo code. Token, ObservedAt and Source never change
// after creation; Metadata may be filled in once, after the initial broadcast.
type Code struct {
	Token      string
	ObservedAt time.Time
	Source     Source
	Metadata
}

// NewCode validates token and source and returns a code observed at observedAt.
func NewCode(token string, source Source, observedAt time.Time, meta Metadata) (*Code, error) {
	if !IsValidToken(token) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("invalid code source: %s", source)
	}
	return &Code{
		Token:      token,
		ObservedAt: observedAt,
		Source:     source,
		Metadata:   meta,
	}, nil
}

// Age returns how long ago the code was observed.
func (c *Code) Age(now time.Time) time.Duration {
	return now.Sub(c.ObservedAt)
}
