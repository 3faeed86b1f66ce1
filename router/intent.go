package router

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Kaif10/multi-agent-assistant/internal/jsonutil"
	"github.com/Kaif10/multi-agent-assistant/llm"
)

// Kind tags the action a user's text requests. The dispatcher switches
// exhaustively over these; anything unrecognized is KindOther.
type Kind string

const (
	KindSendEmail          Kind = "send_email"
	KindSummarizeEmails    Kind = "summarize_emails"
	KindCalendlyLookup     Kind = "calendly_lookup"
	KindSendSchedulingLink Kind = "send_scheduling_link"
	KindOther              Kind = "other"
)

func knownKind(k Kind) bool {
	switch k {
	case KindSendEmail, KindSummarizeEmails, KindCalendlyLookup, KindSendSchedulingLink, KindOther:
		return true
	}
	return false
}

// Intent is the classified request plus its slots. Only the slots relevant to
// Kind are populated; the rest stay zero.
type Intent struct {
	Kind         Kind   `json:"kind"`
	AccountEmail string `json:"account_email,omitempty"`

	// send_email / send_scheduling_link
	To            []string `json:"to,omitempty"`
	Subject       string   `json:"subject,omitempty"`
	Message       string   `json:"message,omitempty"`
	Cc            []string `json:"cc,omitempty"`
	Bcc           []string `json:"bcc,omitempty"`
	InReplyToHint string   `json:"in_reply_to_hint,omitempty"`

	// summarize_emails
	TimeWindow string `json:"time_window,omitempty"`
	Query      string `json:"query,omitempty"`
	Focus      string `json:"focus,omitempty"`

	// calendly_lookup / send_scheduling_link
	CalendlyKey string `json:"calendly_key,omitempty"`
	DateRef     string `json:"date_ref,omitempty"`
	Daypart     string `json:"daypart,omitempty"`
	OwnerType   string `json:"owner_type,omitempty"`

	// Note carries a user-facing diagnostic when classification degraded to
	// KindOther. Never sent to or read from the model.
	Note string `json:"-"`
}

// intentWire is the decode target for model output: list-ish fields arrive as
// either a string or an array depending on the model's mood.
type intentWire struct {
	Kind          string   `json:"kind"`
	AccountEmail  string   `json:"account_email"`
	To            flexList `json:"to"`
	Subject       string   `json:"subject"`
	Message       string   `json:"message"`
	Cc            flexList `json:"cc"`
	Bcc           flexList `json:"bcc"`
	InReplyToHint string   `json:"in_reply_to_hint"`
	TimeWindow    string   `json:"time_window"`
	Query         string   `json:"query"`
	Focus         string   `json:"focus"`
	CalendlyKey   string   `json:"calendly_key"`
	DateRef       string   `json:"date_ref"`
	Daypart       string   `json:"daypart"`
	OwnerType     string   `json:"owner_type"`
}

type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = cleanList(list)
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = splitList(single)
		return nil
	}
	return fmt.Errorf("expected string or array of strings, got %s", trimmed)
}

var listSepRe = regexp.MustCompile(`[;,]+`)

// splitList splits only on commas and semicolons so "Name <a@b.c>" stays intact.
func splitList(s string) []string {
	return cleanList(listSepRe.Split(s, -1))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ClassifyContext is the light context handed to the model alongside the text.
type ClassifyContext struct {
	AccountEmail string
	CalendlyKey  string
}

// Classify turns free text into a validated Intent. Model output that fails
// schema validation degrades to KindOther with a diagnostic note; only
// transport-level failures surface as errors.
func Classify(ctx context.Context, client llm.Client, model, text string, cc ClassifyContext) (Intent, error) {
	if client == nil {
		return Intent{}, fmt.Errorf("nil llm client")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}, fmt.Errorf("empty request text")
	}

	res, err := client.Chat(ctx, llm.Request{
		Model:       model,
		ForceJSON:   true,
		Temperature: 0,
		Seed:        42,
		Messages:    classifyMessages(text, cc),
	})
	if err != nil {
		return Intent{}, fmt.Errorf("classify: %w", err)
	}

	var wire intentWire
	if err := jsonutil.DecodeWithFallback(res.Text, &wire); err != nil {
		return otherIntent(cc, "I couldn't work out what you meant. Could you rephrase that?"), nil
	}

	intent := Intent{
		Kind:          Kind(strings.TrimSpace(strings.ToLower(wire.Kind))),
		AccountEmail:  strings.TrimSpace(wire.AccountEmail),
		To:            wire.To,
		Subject:       strings.TrimSpace(wire.Subject),
		Message:       strings.TrimSpace(wire.Message),
		Cc:            wire.Cc,
		Bcc:           wire.Bcc,
		InReplyToHint: strings.TrimSpace(wire.InReplyToHint),
		TimeWindow:    strings.TrimSpace(wire.TimeWindow),
		Query:         strings.TrimSpace(wire.Query),
		Focus:         strings.TrimSpace(wire.Focus),
		CalendlyKey:   strings.TrimSpace(wire.CalendlyKey),
		DateRef:       strings.TrimSpace(wire.DateRef),
		Daypart:       strings.TrimSpace(strings.ToLower(wire.Daypart)),
		OwnerType:     strings.TrimSpace(wire.OwnerType),
	}

	if !knownKind(intent.Kind) {
		return otherIntent(cc, ""), nil
	}
	if intent.AccountEmail == "" {
		intent.AccountEmail = strings.TrimSpace(cc.AccountEmail)
	}
	if intent.CalendlyKey == "" {
		intent.CalendlyKey = strings.TrimSpace(cc.CalendlyKey)
	}

	if note := validateIntent(intent); note != "" {
		degraded := otherIntent(cc, note)
		return degraded, nil
	}
	return intent, nil
}

func otherIntent(cc ClassifyContext, note string) Intent {
	return Intent{
		Kind:         KindOther,
		AccountEmail: strings.TrimSpace(cc.AccountEmail),
		CalendlyKey:  strings.TrimSpace(cc.CalendlyKey),
		Note:         note,
	}
}

// validateIntent enforces that actionable intents carry the fields needed to
// execute them. A non-empty return is the user-facing reason the intent was
// downgraded.
func validateIntent(intent Intent) string {
	switch intent.Kind {
	case KindSendEmail:
		if len(intent.To) == 0 {
			return "I couldn't find a recipient. Please include an email address."
		}
		for _, addr := range intent.To {
			if !plausibleAddress(addr) {
				return fmt.Sprintf("%q doesn't look like an email address. Could you double-check the recipient?", addr)
			}
		}
	case KindSendSchedulingLink:
		for _, addr := range intent.To {
			if !plausibleAddress(addr) {
				return fmt.Sprintf("%q doesn't look like an email address. Could you double-check the recipient?", addr)
			}
		}
	}
	return ""
}

var addressRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// plausibleAddress accepts bare addresses and "Name <addr>" forms. It checks
// shape only; deliverability is the mail provider's problem.
func plausibleAddress(s string) bool {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "<"); open >= 0 && strings.HasSuffix(s, ">") {
		s = s[open+1 : len(s)-1]
	}
	return addressRe.MatchString(s)
}
