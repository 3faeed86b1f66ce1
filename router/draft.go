package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kaif10/multi-agent-assistant/internal/jsonutil"
	"github.com/Kaif10/multi-agent-assistant/llm"
)

const draftSystemPrompt = `You are an expert communications assistant. Write a concise, professional email based on a short instruction. ` +
	`Tone: respectful, clear, and empathetic when the topic is sensitive (e.g., employment changes). ` +
	`Avoid slang or harsh phrasing. Do not include legal advice or confidential details. ` +
	`Prefer neutral wording (e.g., 'We regret to inform you...'). ` +
	`Return ONLY JSON with subject and body_text.`

// draftEmail turns a terse instruction into a subject and body. A malformed
// model response falls back to the hint and instruction as-is; only transport
// failures are errors.
func draftEmail(ctx context.Context, client llm.Client, model, subjectHint, instruction string, to []string, signature string) (string, string, error) {
	user := fmt.Sprintf(
		"Instruction: %s\nRecipient(s): %s\nSubject hint: %s\nSignature: %s\n"+
			"Constraints: <= 180 words. If no recipient name is known, use a generic greeting (e.g., 'Hello').",
		instruction,
		orPlaceholder(strings.Join(to, ", "), "(not specified)"),
		orPlaceholder(subjectHint, "(none)"),
		orPlaceholder(signature, "(none)"),
	)

	res, err := client.Chat(ctx, llm.Request{
		Model:       model,
		ForceJSON:   true,
		Temperature: 0.2,
		Seed:        42,
		Messages: []llm.Message{
			{Role: "system", Content: draftSystemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("draft email: %w", err)
	}

	var draft struct {
		Subject  string `json:"subject"`
		BodyText string `json:"body_text"`
	}
	if err := jsonutil.DecodeWithFallback(res.Text, &draft); err != nil {
		draft.Subject = subjectHint
		draft.BodyText = instruction
	}

	subject := strings.TrimSpace(draft.Subject)
	if subject == "" {
		subject = strings.TrimSpace(subjectHint)
	}
	body := strings.TrimSpace(draft.BodyText)
	if body == "" {
		body = strings.TrimSpace(instruction)
	}
	if signature != "" && !strings.Contains(body, signature) {
		body = body + "\n\n" + signature
	}
	return subject, body, nil
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
