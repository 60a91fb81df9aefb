package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

func TestSchedulerManager_RegisterAndRun(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	var evictions, sweeps atomic.Int32
	require.NoError(t, m.RegisterCacheEviction(BatchJobFunc(func(ctx context.Context) (int, error) {
		evictions.Add(1)
		return 2, nil
	}), 20*time.Millisecond))
	require.NoError(t, m.RegisterRegistrySweep(BatchJobFunc(func(ctx context.Context) (int, error) {
		sweeps.Add(1)
		return 0, errors.New("sweep failed")
	}), 20*time.Millisecond))

	names := make([]string, 0, 2)
	for _, j := range m.Jobs() {
		names = append(names, j.Name())
	}
	assert.ElementsMatch(t, []string{"code-cache-evict", "registry-sweep"}, names)

	m.Start()
	assert.True(t, m.IsStarted())

	require.Eventually(t, func() bool {
		return evictions.Load() >= 2 && sweeps.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "jobs keep running after a failed batch")

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	require.NoError(t, m.Stop())
}

func TestSchedulerManager_StartIsIdempotent(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, m.RegisterClaimLockSweep(BatchJobFunc(func(ctx context.Context) (int, error) {
		return 0, nil
	}), time.Hour))
	require.NoError(t, m.RegisterSessionHealthCheck(BatchJobFunc(func(ctx context.Context) (int, error) {
		return 0, nil
	}), time.Hour))

	m.Start()
	m.Start()
	assert.Len(t, m.Jobs(), 2)
	require.NoError(t, m.Stop())
}
