package admin

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/testutil"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type fakeBroadcaster struct {
	cached    map[string]code.Code
	turbo     bool
	delivered int
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{cached: map[string]code.Code{}, delivered: 2}
}

func (b *fakeBroadcaster) IngestExplicit(_ context.Context, c code.Code) (broadcast.FanoutReport, error) {
	if _, ok := b.cached[c.Token]; ok {
		return broadcast.FanoutReport{}, fmt.Errorf("%w: %s", code.ErrDuplicateCode, c.Token)
	}
	b.cached[c.Token] = c
	return broadcast.FanoutReport{Attempted: b.delivered, Delivered: b.delivered}, nil
}

func (b *fakeBroadcaster) Remove(token string) bool {
	_, ok := b.cached[token]
	delete(b.cached, token)
	return ok
}

func (b *fakeBroadcaster) SetTurbo(enabled bool) (broadcast.TurboSettings, broadcast.FanoutReport) {
	b.turbo = enabled
	return broadcast.NewTurboSwitch(enabled, 0, 0).Settings(), broadcast.FanoutReport{Attempted: b.delivered, Delivered: b.delivered}
}

type fakePresence struct {
	conns []services.Connection
}

func (p *fakePresence) Online() []services.Connection { return p.conns }

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCodeHandler() (*CodeHandler, *fakeBroadcaster, *fakePresence) {
	b := newFakeBroadcaster()
	p := &fakePresence{}
	h := NewCodeHandler(b, p, func() time.Time { return fixedNow }, logger.NewNopLogger())
	return h, b, p
}

func TestCodeHandler_CreateCode(t *testing.T) {
	h, b, _ := newTestCodeHandler()
	c, w := testutil.NewTestContext(http.MethodPost, "/api/admin/codes", CreateCodeRequest{
		Code:             " vipdrop25 ",
		Value:            "$25",
		Limit:            "500",
		WagerRequirement: "$1,000",
		Timeline:         "7 days",
	})

	h.CreateCode(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var data CreateCodeResponse
	_, err := testutil.ParseData(w, &data)
	require.NoError(t, err)
	assert.Equal(t, "VIPDROP25", data.Code.Token)
	assert.Equal(t, "$25", data.Code.Value)
	assert.Equal(t, "500", data.Code.Limit)
	assert.Equal(t, "admin", data.Code.Source)
	assert.Equal(t, fixedNow.UnixMilli(), data.Code.Timestamp)
	assert.Equal(t, FanoutResponse{Attempted: 2, Delivered: 2}, data.Fanout)

	cached := b.cached["VIPDROP25"]
	assert.Equal(t, "$1,000", cached.WagerRequirement)
	assert.Equal(t, code.SourceAdmin, cached.Source)
}

func TestCodeHandler_CreateCode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"missing code", map[string]any{"value": "$5"}, http.StatusBadRequest},
		{"too short", CreateCodeRequest{Code: "AB"}, http.StatusBadRequest},
		{"punctuation", CreateCodeRequest{Code: "BAD-CODE"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b, _ := newTestCodeHandler()
			c, w := testutil.NewTestContext(http.MethodPost, "/api/admin/codes", tt.body)

			h.CreateCode(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, b.cached)
		})
	}
}

func TestCodeHandler_CreateCode_Duplicate(t *testing.T) {
	h, _, _ := newTestCodeHandler()

	c, w := testutil.NewTestContext(http.MethodPost, "/api/admin/codes", CreateCodeRequest{Code: "TWICE123"})
	h.CreateCode(c)
	require.Equal(t, http.StatusCreated, w.Code)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/codes", CreateCodeRequest{Code: "twice123"})
	h.CreateCode(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp, err := testutil.ParseData(w, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "conflict", resp.Error.Type)
}

func TestCodeHandler_DeleteCode(t *testing.T) {
	h, b, _ := newTestCodeHandler()
	b.cached["GONECODE1"] = code.Code{Token: "GONECODE1"}

	c, w := testutil.NewTestContext(http.MethodDelete, "/api/admin/codes/gonecode1", nil)
	testutil.SetURLParam(c, "token", "gonecode1")
	h.DeleteCode(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, b.cached)

	c, w = testutil.NewTestContext(http.MethodDelete, "/api/admin/codes/GONECODE1", nil)
	testutil.SetURLParam(c, "token", "GONECODE1")
	h.DeleteCode(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = testutil.NewTestContext(http.MethodDelete, "/api/admin/codes/x", nil)
	testutil.SetURLParam(c, "token", "x")
	h.DeleteCode(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCodeHandler_SetTurbo(t *testing.T) {
	h, b, _ := newTestCodeHandler()

	c, w := testutil.NewTestContext(http.MethodPost, "/api/admin/turbo", map[string]any{"enabled": true})
	h.SetTurbo(c)

	require.Equal(t, http.StatusOK, w.Code)
	var data TurboResponse
	_, err := testutil.ParseData(w, &data)
	require.NoError(t, err)
	assert.True(t, b.turbo)
	assert.True(t, data.TurboMode)
	assert.Equal(t, int64(50), data.PollIntervalMs)
	assert.Equal(t, 2, data.Fanout.Delivered)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/turbo", map[string]any{"enabled": false})
	h.SetTurbo(c)
	_, err = testutil.ParseData(w, &data)
	require.NoError(t, err)
	assert.False(t, data.TurboMode)
	assert.Equal(t, int64(200), data.PollIntervalMs)

	c, w = testutil.NewTestContext(http.MethodPost, "/api/admin/turbo", map[string]any{})
	h.SetTurbo(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCodeHandler_ListOnline(t *testing.T) {
	h, _, p := newTestCodeHandler()
	p.conns = []services.Connection{
		{Profile: services.Profile{AccountID: "acct_alice", DisplayName: "Alice"}, Live: true, ConnectedAt: fixedNow},
		{Profile: services.Profile{AccountID: "acct_bob", DisplayName: "Bob"}, LastSeenAt: fixedNow},
	}

	c, w := testutil.NewTestContext(http.MethodGet, "/api/admin/online", nil)
	h.ListOnline(c)

	require.Equal(t, http.StatusOK, w.Code)
	var data OnlineResponse
	_, err := testutil.ParseData(w, &data)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Count)
	require.Len(t, data.Accounts, 2)
	assert.Equal(t, "Alice", data.Accounts[0].DisplayName)
	assert.True(t, data.Accounts[0].Live)
	assert.False(t, data.Accounts[1].Live)
}
