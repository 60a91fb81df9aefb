package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/codedrop-io/codedrop/internal/domain/code"
)

// EscapeHTML escapes HTML special characters for safe Telegram message formatting
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func writeField(b *strings.Builder, icon, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s <b>%s:</b> %s\n", icon, label, EscapeHTML(value))
}

// BuildNewCodeMessage builds the per-user DM for a freshly broadcast code.
func BuildNewCodeMessage(c code.Code) string {
	var b strings.Builder
	b.WriteString("🎰 <b>NEW CODE DETECTED</b>\n\n")
	fmt.Fprintf(&b, "<b>Code:</b> <code>%s</code>\n", EscapeHTML(c.Token))
	writeField(&b, "💰", "Value", c.Value)
	writeField(&b, "👥", "Limit", c.ClaimLimit)
	writeField(&b, "🎲", "Wager", c.WagerRequirement)
	writeField(&b, "⏰", "Deadline", c.Timeline)
	b.WriteString("\n⚡ Auto-claiming in progress...")
	return b.String()
}

// BuildAdminBroadcastMessage builds the admin summary of one broadcast.
func BuildAdminBroadcastMessage(c code.Code, delivered, dmSent, dmSkipped int) string {
	var b strings.Builder
	b.WriteString("🎰 <b>NEW CODE BROADCASTED</b>\n\n")
	fmt.Fprintf(&b, "<b>Code:</b> <code>%s</code>\n", EscapeHTML(c.Token))
	writeField(&b, "💰", "Value", c.Value)
	writeField(&b, "📡", "Source", string(c.Source))
	fmt.Fprintf(&b, "👥 <b>Sent to:</b> %d clients\n", delivered)
	fmt.Fprintf(&b, "📲 <b>DM sent:</b> %d, skipped: %d", dmSent, dmSkipped)
	return b.String()
}

// BuildClaimResultMessage builds the DM telling a user how a claim went.
func BuildClaimResultMessage(token, username, value, reason string, success bool) string {
	var b strings.Builder
	if success {
		b.WriteString("✅ <b>CODE CLAIMED!</b>\n\n")
		fmt.Fprintf(&b, "<b>Code:</b> <code>%s</code>\n", EscapeHTML(token))
		writeField(&b, "💰", "Value", value)
		writeField(&b, "👤", "Account", username)
		b.WriteString("\n🎉 Successfully added to your balance!")
		return b.String()
	}

	if reason == "" {
		reason = "Unknown"
	}
	b.WriteString("❌ <b>CODE REJECTED</b>\n\n")
	fmt.Fprintf(&b, "<b>Code:</b> <code>%s</code>\n", EscapeHTML(token))
	writeField(&b, "👤", "Account", username)
	writeField(&b, "📝", "Reason", reason)
	b.WriteString("\n💡 This code may be expired or already claimed.")
	return b.String()
}

// BuildAdminClaimResultMessage builds the admin copy of a claim resolution.
func BuildAdminClaimResultMessage(token, username, value, reason, source string, success, dmEnabled bool) string {
	var b strings.Builder
	status := "REJECTED"
	if success {
		status = "SUCCESS"
	}
	fmt.Fprintf(&b, "📋 <b>CLAIM %s</b>\n\n", status)
	fmt.Fprintf(&b, "<b>Code:</b> <code>%s</code>\n", EscapeHTML(token))
	writeField(&b, "👤", "User", username)
	fmt.Fprintf(&b, "🔔 <b>DM Alerts:</b> %s\n", onOff(dmEnabled))
	if success {
		writeField(&b, "💰", "Value", value)
	} else {
		if reason == "" {
			reason = "Unknown"
		}
		writeField(&b, "📝", "Reason", reason)
	}
	if source == "" {
		source = "auto"
	}
	writeField(&b, "🔗", "Source", source)
	return strings.TrimRight(b.String(), "\n")
}

// BuildConnectedMessage builds the DM sent when an account comes online.
func BuildConnectedMessage(username string) string {
	return fmt.Sprintf("🟢 <b>CONNECTED</b>\n\n"+
		"Your account <b>%s</b> is now online and ready to auto-claim codes!\n\n"+
		"⚡ Instant code delivery active", EscapeHTML(username))
}

// BuildDisconnectedMessage builds the DM sent when an account goes offline.
func BuildDisconnectedMessage(username string) string {
	return fmt.Sprintf("🔴 <b>DISCONNECTED</b>\n\n"+
		"Your account <b>%s</b> went offline.\n\n"+
		"⚠️ Codes will NOT be auto-claimed while offline.", EscapeHTML(username))
}

// BuildAdminPresenceMessage builds the admin copy of a connect or disconnect.
func BuildAdminPresenceMessage(username string, online bool, dmEnabled bool, totalOnline int) string {
	header := "🔴 <b>USER DISCONNECTED</b>"
	if online {
		header = "🟢 <b>USER CONNECTED</b>"
	}
	return fmt.Sprintf("%s\n\n👤 <b>User:</b> %s\n🔔 <b>DM Alerts:</b> %s\n👥 <b>Total Online:</b> %d",
		header, EscapeHTML(username), onOff(dmEnabled), totalOnline)
}
