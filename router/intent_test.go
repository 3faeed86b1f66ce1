package router

import (
	"encoding/json"
	"testing"
)

func TestFlexListAcceptsStringOrArray(t *testing.T) {
	var wire intentWire
	if err := json.Unmarshal([]byte(`{"kind":"send_email","to":"a@b.co; c@d.co","cc":["e@f.co"]}`), &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(wire.To) != 2 || wire.To[0] != "a@b.co" || wire.To[1] != "c@d.co" {
		t.Fatalf("to = %v", wire.To)
	}
	if len(wire.Cc) != 1 || wire.Cc[0] != "e@f.co" {
		t.Fatalf("cc = %v", wire.Cc)
	}

	if err := json.Unmarshal([]byte(`{"to":null}`), &wire); err != nil {
		t.Fatalf("null list: %v", err)
	}
}

func TestPlausibleAddress(t *testing.T) {
	valid := []string{"a@b.co", "first.last+tag@mail.example.org", "Alex Smith <alex@example.com>"}
	for _, addr := range valid {
		if !plausibleAddress(addr) {
			t.Fatalf("plausibleAddress(%q) = false", addr)
		}
	}
	invalid := []string{"", "alex", "alex@", "@example.com", "a b@c.co", "alex@example"}
	for _, addr := range invalid {
		if plausibleAddress(addr) {
			t.Fatalf("plausibleAddress(%q) = true", addr)
		}
	}
}

func TestValidateIntentDowngradesBadRecipient(t *testing.T) {
	note := validateIntent(Intent{Kind: KindSendEmail, To: []string{"not-an-address"}})
	if note == "" {
		t.Fatalf("expected downgrade note")
	}
	if validateIntent(Intent{Kind: KindSendEmail, To: []string{"a@b.co"}}) != "" {
		t.Fatalf("valid recipient must pass")
	}
	// Scheduling link without recipients is fine: the link is just returned.
	if validateIntent(Intent{Kind: KindSendSchedulingLink}) != "" {
		t.Fatalf("recipient-less scheduling link must pass")
	}
}
