package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/shared/config"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

func TestInitAndClose(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", Database: ":memory:"}

	require.NoError(t, Init(cfg, logger.NewNopLogger()))
	conn := Get()
	require.NotNil(t, conn)

	var one int
	require.NoError(t, conn.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, Close())
	assert.Nil(t, Get())
	assert.NoError(t, Close())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "postgres"}, logger.NewNopLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}
