package router

import (
	"encoding/json"
	"fmt"
	"sync"

	_ "embed"

	"github.com/Kaif10/multi-agent-assistant/llm"
	"gopkg.in/yaml.v3"
)

const classifySystemPrompt = `You convert user requests into a STRICT JSON intent.
Rules:
- Allowed kinds: send_email | summarize_emails | calendly_lookup | send_scheduling_link | other
- Fields: kind, account_email, to, subject, message, cc, bcc, in_reply_to_hint, time_window, query, focus, calendly_key, date_ref, daypart, owner_type
- Never invent email addresses or names. If a field is unknown, omit it or set it to null ([] for list fields).
- Keep subject short and neutral. Use the user's wording for message when provided; otherwise draft a brief, professional first version.
- For summarize_emails, infer time_window (e.g., "yesterday", "last 3 days") and optional query/focus from the user's words. Do not guess specifics.
- For calendly_lookup, infer date_ref (e.g., "monday", ISO date) and daypart (morning/afternoon/evening) only if the user implies it.
- Output ONLY JSON matching the schema; no commentary.`

//go:embed examples.yaml
var examplesYAML []byte

type fewShot struct {
	User   string         `yaml:"user"`
	Intent map[string]any `yaml:"intent"`
}

var (
	fewShotsOnce sync.Once
	fewShots     []fewShot
	fewShotsErr  error
)

func loadFewShots() ([]fewShot, error) {
	fewShotsOnce.Do(func() {
		fewShotsErr = yaml.Unmarshal(examplesYAML, &fewShots)
	})
	return fewShots, fewShotsErr
}

func classifyMessages(text string, cc ClassifyContext) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: classifySystemPrompt}}
	shots, err := loadFewShots()
	if err == nil {
		for _, shot := range shots {
			payload, merr := json.Marshal(shot.Intent)
			if merr != nil {
				continue
			}
			msgs = append(msgs,
				llm.Message{Role: "user", Content: shot.User},
				llm.Message{Role: "assistant", Content: string(payload)},
			)
		}
	}
	msgs = append(msgs,
		llm.Message{Role: "user", Content: text},
		llm.Message{Role: "user", Content: fmt.Sprintf("account_email=%s calendly_key=%s", cc.AccountEmail, cc.CalendlyKey)},
	)
	return msgs
}

const summarizeEmailsPrompt = `You summarize recent emails for the user. Output up to 5 bullets. ` +
	`Each bullet: [Sender] - Subject - 1-sentence gist - (date/time). ` +
	`End with 'Key actions:' and up to 3 bullets of next steps (if any). ` +
	`Respect any time window or focus the user asked for. Be concise (<= 1200 chars).`

const summarizeEventsPrompt = `Summarize hosted Calendly events for the requested date/daypart. ` +
	`Output up to 5 bullets with: Who (names, emails) - When (local time) - Topic/Type - Notable Q&A - Follow-ups. ` +
	`If none, reply: 'No hosted events on <date> (<window>)'. Keep <= 600 chars.`

// truncateForPrompt keeps serialized payloads inside the model context.
func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
