package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codedrop-io/codedrop/internal/domain/code"
)

func TestBuildNewCodeMessage(t *testing.T) {
	c := code.Code{
		Token:      "NEWCODE123",
		ObservedAt: time.Now(),
		Source:     code.SourceIngest,
		Metadata:   code.Metadata{Value: "$5", ClaimLimit: "200"},
	}

	msg := BuildNewCodeMessage(c)
	assert.Contains(t, msg, "<code>NEWCODE123</code>")
	assert.Contains(t, msg, "<b>Value:</b> $5")
	assert.Contains(t, msg, "<b>Limit:</b> 200")
	assert.NotContains(t, msg, "Wager")
	assert.NotContains(t, msg, "Deadline")
}

func TestBuildClaimResultMessage_EscapesAndDefaults(t *testing.T) {
	msg := BuildClaimResultMessage("ABCD1234", "<bob>", "", "", false)
	assert.Contains(t, msg, "CODE REJECTED")
	assert.Contains(t, msg, "&lt;bob&gt;")
	assert.Contains(t, msg, "<b>Reason:</b> Unknown")

	msg = BuildClaimResultMessage("ABCD1234", "bob", "$10", "", true)
	assert.Contains(t, msg, "CODE CLAIMED")
	assert.Contains(t, msg, "<b>Value:</b> $10")
}

func TestBuildAdminMessages(t *testing.T) {
	c := code.Code{Token: "ZXCV9876", Source: code.SourceAdmin}
	msg := BuildAdminBroadcastMessage(c, 3, 1, 2)
	assert.Contains(t, msg, "3 clients")
	assert.Contains(t, msg, "DM sent:</b> 1, skipped: 2")

	msg = BuildAdminClaimResultMessage("ZXCV9876", "bob", "", "expired", "", false, true)
	assert.Contains(t, msg, "CLAIM REJECTED")
	assert.Contains(t, msg, "DM Alerts:</b> ON")
	assert.Contains(t, msg, "<b>Source:</b> auto")

	assert.Contains(t, BuildAdminPresenceMessage("bob", true, false, 4), "USER CONNECTED")
	assert.Contains(t, BuildAdminPresenceMessage("bob", false, false, 3), "Total Online:</b> 3")
}
