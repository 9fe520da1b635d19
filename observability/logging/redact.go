package logging

import "strings"

// RedactedValue replaces sensitive material in log output. The custodial signer
// key and the bot token must never appear in logs, even truncated.
const RedactedValue = "[REDACTED]"

var sensitiveKeyFragments = []string{
	"key",
	"token",
	"secret",
	"mnemonic",
	"password",
}

// Sensitive reports whether a log key is likely to carry secret material and
// should be masked before emission.
func Sensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// Redact masks the value when its key is sensitive.
func Redact(key, value string) string {
	if Sensitive(key) {
		return RedactedValue
	}
	return value
}
