package code

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCode(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := NewCode("NEWCODE123", SourceAdmin, now, Metadata{Value: "$5"})
	require.NoError(t, err)
	assert.Equal(t, "NEWCODE123", c.Token)
	assert.Equal(t, SourceAdmin, c.Source)
	assert.Equal(t, "$5", c.Value)
	assert.Equal(t, time.Minute, c.Age(now.Add(time.Minute)))
}

func TestNewCode_Invalid(t *testing.T) {
	now := time.Now()

	_, err := NewCode("abc", SourceIngest, now, Metadata{})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewCode("ABCDEF", Source("bot"), now, Metadata{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}
