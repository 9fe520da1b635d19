package logging

import "testing"

func TestSensitive(t *testing.T) {
	t.Parallel()

	sensitive := []string{"key", "signer_key", "TOKEN", "bot_token", "api-secret", "mnemonic", "Password"}
	for _, key := range sensitive {
		if !Sensitive(key) {
			t.Errorf("key %q should be sensitive", key)
		}
	}
	plain := []string{"chat_id", "tx_hash", "market", "wallet", "error"}
	for _, key := range plain {
		if Sensitive(key) {
			t.Errorf("key %q should not be sensitive", key)
		}
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	if got := Redact("signer_key", "deadbeef"); got != RedactedValue {
		t.Fatalf("got %q", got)
	}
	if got := Redact("tx_hash", "0xabc"); got != "0xabc" {
		t.Fatalf("got %q", got)
	}
}
