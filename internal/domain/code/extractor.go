package code

import (
	"regexp"
	"strings"
)

var (
	consecutiveLetters = regexp.MustCompile(`[A-Z]{3}`)

	valuePattern    = regexp.MustCompile(`(?i)\$(\d+(?:\.\d+)?)\s+for\s+the\s+first`)
	limitPattern    = regexp.MustCompile(`(?i)for\s+the\s+first\s+([\d,]+)!`)
	wagerPattern    = regexp.MustCompile(`(?i)\$([\d,]+)\s+wager\s+requirement`)
	timelinePattern = regexp.MustCompile(`(?i)past\s+(\d+)\s+days?`)
)

// ExtractToken finds the promo code token in free-form text.
//
// The first pass returns the first standalone line that is a valid token and
// is either at least 6 characters long or contains 3 consecutive letters,
// which filters out short numeric noise. The second pass returns the line
// directly after a line mentioning "code", if that line is a valid token.
func ExtractToken(text string) (string, bool) {
	lines := splitLines(text)

	for _, line := range lines {
		if !IsValidToken(line) {
			continue
		}
		if len(line) >= 6 || consecutiveLetters.MatchString(line) {
			return line, true
		}
	}

	for i := 0; i < len(lines)-1; i++ {
		if !strings.Contains(strings.ToLower(lines[i]), "code") {
			continue
		}
		if next := lines[i+1]; IsValidToken(next) {
			return next, true
		}
	}

	return "", false
}

// ExtractMetadata pulls value, claim limit, wager requirement and timeline out
// of text. Fields that do not match stay empty.
func ExtractMetadata(text string) Metadata {
	var meta Metadata
	if m := valuePattern.FindStringSubmatch(text); m != nil {
		meta.Value = "$" + m[1]
	}
	if m := limitPattern.FindStringSubmatch(text); m != nil {
		meta.ClaimLimit = m[1]
	}
	if m := wagerPattern.FindStringSubmatch(text); m != nil {
		meta.WagerRequirement = "$" + m[1]
	}
	if m := timelinePattern.FindStringSubmatch(text); m != nil {
		meta.Timeline = m[1] + " days"
	}
	return meta
}

// Extract returns the token and metadata found in text, or false when no token
// is present. Metadata never affects whether a token is found.
func Extract(text string) (string, Metadata, bool) {
	token, ok := ExtractToken(text)
	if !ok {
		return "", Metadata{}, false
	}
	return token, ExtractMetadata(text), true
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
