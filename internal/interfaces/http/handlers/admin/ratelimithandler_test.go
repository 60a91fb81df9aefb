package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/testutil"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type mockResetter struct {
	mock.Mock
}

func (m *mockResetter) Reset(ctx context.Context, scope, caller string) error {
	return m.Called(ctx, scope, caller).Error(0)
}

func TestRateLimitHandler_Reset(t *testing.T) {
	limiter := new(mockResetter)
	limiter.On("Reset", mock.Anything, "claim", "account:acct_1").Return(nil).Once()
	limiter.On("Reset", mock.Anything, "ingest", "feed:down").Return(middleware.ErrRateLimitingDisabled).Once()
	limiter.On("Reset", mock.Anything, "ingest", "feed:err").Return(errors.New("redis down")).Once()

	h := NewRateLimitHandler(limiter, logger.NewNopLogger())

	c, w := testutil.NewTestContext(http.MethodPost, "/api/admin/rate-limits/reset", map[string]string{"scope": " claim ", "caller": "account:acct_1"})
	h.ResetRateLimit(c)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/rate-limits/reset", map[string]string{"scope": "claim"})
	h.ResetRateLimit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/rate-limits/reset", map[string]string{"scope": "claim", "caller": "*"})
	h.ResetRateLimit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/rate-limits/reset", map[string]string{"scope": "ingest", "caller": "feed:down"})
	h.ResetRateLimit(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/rate-limits/reset", map[string]string{"scope": "ingest", "caller": "feed:err"})
	h.ResetRateLimit(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	limiter.AssertExpectations(t)
}
