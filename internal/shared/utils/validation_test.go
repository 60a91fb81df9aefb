package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/shared/errors"
)

type sampleInner struct {
	Port int `mapstructure:"port" validate:"gte=1,lte=65535"`
}

type sample struct {
	Username string      `yaml:"username" validate:"required,alphanum"`
	Server   sampleInner `mapstructure:"server"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sample{Username: "alice", Server: sampleInner{Port: 80}}))

	err := ValidateStruct(&sample{Username: "", Server: sampleInner{Port: 0}})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Contains(t, appErr.Details, "username is required")
	assert.Contains(t, appErr.Details, "server.port must be greater than or equal to 1")
}
