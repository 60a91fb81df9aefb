package live

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/domain/code"
)

func TestEncode_StampsType(t *testing.T) {
	b, err := Encode(NewCode{Code: CodePayload{Token: "NEWCODE123", Timestamp: 1}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "new_code", raw["type"])
	assert.Equal(t, "NEWCODE123", raw["code"].(map[string]any)["token"])
}

func TestEncode_AuthSuccessEmptySnapshot(t *testing.T) {
	b, err := Encode(AuthSuccess{AccountID: "acct_1"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"recentCodes":[]`)
}

func TestEncode_RejectsUnknown(t *testing.T) {
	_, err := Encode(Unknown{Type: "bogus"})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Frame
	}{
		{"auth", `{"type":"auth","token":"abc"}`, Auth{Type: TypeAuth, Token: "abc"}},
		{"ping", `{"type":"ping","accountId":"acct_1"}`, Ping{Type: TypePing, AccountID: "acct_1"}},
		{"turbo", `{"type":"turbo_state","enabled":true,"pollIntervalMs":50}`, TurboState{Type: TypeTurboState, Enabled: true, PollIntervalMs: 50}},
		{"claim result", `{"type":"claim_result","code":"ABC123","success":false,"reason":"expired"}`,
			ClaimResult{Type: TypeClaimResult, Code: "ABC123", Reason: "expired"}},
		{"unknown", `{"type":"admin_subscribe"}`, Unknown{Type: "admin_subscribe"}},
		{"missing type", `{}`, Unknown{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"auth","token":5}`))
	assert.Error(t, err)
}

func TestFromCode(t *testing.T) {
	observed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := code.NewCode("NEWCODE123", code.SourceIngest, observed, code.Metadata{Value: "$5", ClaimLimit: "1,000"})
	require.NoError(t, err)

	p := FromCode(*c)
	assert.Equal(t, "NEWCODE123", p.Token)
	assert.Equal(t, "$5", p.Value)
	assert.Equal(t, "1,000", p.Limit)
	assert.Equal(t, "ingest", p.Source)
	assert.Equal(t, observed, p.ObservedAt())
}
