package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/datewindow"
	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/llm"
	"github.com/google/uuid"
)

// Fetch caps for email summarization: windowed searches pull more because the
// local date post-filter discards boundary noise.
const (
	windowedFetchLimit = 120
	recentFetchLimit   = 60
	summaryInputLimit  = 40
	promptPayloadLimit = 100000
)

// GmailService is the slice of the Gmail collaborator the dispatcher uses.
type GmailService interface {
	ListRecent(ctx context.Context, account string, maxResults int) ([]gmail.MessageSummary, error)
	Search(ctx context.Context, account, query string, maxResults int) ([]gmail.MessageSummary, error)
	Send(ctx context.Context, account string, msg gmail.OutgoingMessage) (gmail.SendResult, error)
}

// CalendlyService is the slice of the Calendly collaborator the dispatcher uses.
type CalendlyService interface {
	ListEventsOn(ctx context.Context, accountKey string, day time.Time, daypart string, loc *time.Location) ([]calendly.Event, error)
	CreateSchedulingLink(ctx context.Context, accountKey, ownerType string, maxCount int) (calendly.Link, error)
}

// ActionResult is the dispatcher's uniform outcome. Collaborator failures are
// folded into Success=false with a human-readable Summary; they never escape
// as errors.
type ActionResult struct {
	Success bool
	Status  string
	Summary string
	Details map[string]any
}

func failure(action, reason string, details map[string]any) ActionResult {
	if details == nil {
		details = map[string]any{}
	}
	details["action"] = action
	details["status"] = "error"
	return ActionResult{Success: false, Status: "error", Summary: reason, Details: details}
}

type Dispatcher struct {
	Gmail    GmailService
	Calendly CalendlyService
	LLM      llm.Client
	Config   Config
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) loc() *time.Location {
	if d.Config.Timezone != nil {
		return d.Config.Timezone
	}
	return time.UTC
}

// Dispatch executes a validated intent and always returns a result envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, userText string, intent Intent) ActionResult {
	switch intent.Kind {
	case KindSendEmail:
		return d.sendEmail(ctx, userText, intent)
	case KindSummarizeEmails:
		return d.summarizeEmails(ctx, userText, intent)
	case KindCalendlyLookup:
		return d.calendlyLookup(ctx, intent)
	case KindSendSchedulingLink:
		return d.sendSchedulingLink(ctx, intent)
	case KindOther:
		return d.other(intent)
	default:
		// Classify never emits unknown kinds; guard anyway.
		return d.other(Intent{Kind: KindOther, Note: intent.Note})
	}
}

func (d *Dispatcher) account(intent Intent) string {
	if intent.AccountEmail != "" {
		return intent.AccountEmail
	}
	return d.Config.DefaultAccount
}

func (d *Dispatcher) calendlyKey(intent Intent) string {
	if intent.CalendlyKey != "" {
		return intent.CalendlyKey
	}
	return d.Config.DefaultCalendlyKey
}

func (d *Dispatcher) sendEmail(ctx context.Context, userText string, intent Intent) ActionResult {
	acct := d.account(intent)
	if len(intent.To) == 0 {
		return failure("send_email", "I couldn't find a recipient. Please include an email address.",
			map[string]any{"account_email": acct})
	}

	instruction := intent.Message
	if instruction == "" {
		instruction = userText
	}
	subject, body, err := draftEmail(ctx, d.LLM, d.Config.Model, intent.Subject, instruction, intent.To, d.Config.Signature)
	if err != nil {
		return failure("send_email", "I couldn't draft that email right now. Please try again.",
			map[string]any{"account_email": acct, "to": intent.To})
	}

	replyID := d.resolveReplyTarget(ctx, acct, intent.InReplyToHint)

	res, simulated, err := d.deliver(ctx, acct, gmail.OutgoingMessage{
		To:        intent.To,
		Subject:   subject,
		Body:      body,
		Cc:        intent.Cc,
		Bcc:       intent.Bcc,
		InReplyTo: replyID,
	})
	if err != nil {
		return failure("send_email", fmt.Sprintf("I couldn't send the email: %v", err),
			map[string]any{"account_email": acct, "to": intent.To, "subject": subject})
	}

	details := map[string]any{
		"action":        "send_email",
		"account_email": acct,
		"to":            intent.To,
		"subject":       subject,
		"message_id":    res.ID,
	}
	if len(intent.Cc) > 0 {
		details["cc"] = intent.Cc
	}
	if len(intent.Bcc) > 0 {
		details["bcc"] = intent.Bcc
	}
	if res.ThreadID != "" {
		details["thread_id"] = res.ThreadID
	}
	if simulated {
		details["status"] = "simulated"
		return ActionResult{
			Success: true,
			Status:  "simulated",
			Summary: fmt.Sprintf("Dry run: I would send %q to %s, but sending is disabled.", subject, strings.Join(intent.To, ", ")),
			Details: details,
		}
	}
	details["status"] = "sent"
	return ActionResult{
		Success: true,
		Status:  "sent",
		Summary: fmt.Sprintf("Sent! id=%s thread=%s", res.ID, res.ThreadID),
		Details: details,
	}
}

// deliver sends through Gmail unless dry-run is on, in which case it
// fabricates a SendResult without any network call.
func (d *Dispatcher) deliver(ctx context.Context, account string, msg gmail.OutgoingMessage) (gmail.SendResult, bool, error) {
	if d.Config.DryRun {
		d.logger().Info("send_email_dry_run", "account", account, "to", strings.Join(msg.To, ", "))
		return gmail.SendResult{ID: "dry-run-" + uuid.NewString()}, true, nil
	}
	res, err := d.Gmail.Send(ctx, account, msg)
	return res, false, err
}

var plainHintRe = regexp.MustCompile(`[:()\s]`)

// resolveReplyTarget maps a subject/thread hint to a concrete message ID so
// the provider can thread the reply. Failures only cost the threading.
func (d *Dispatcher) resolveReplyTarget(ctx context.Context, account, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	query := hint
	if !plainHintRe.MatchString(hint) {
		query = fmt.Sprintf("subject:%q", hint)
	}
	hits, err := d.Gmail.Search(ctx, account, query, 1)
	if err != nil {
		d.logger().Warn("reply_target_lookup_failed", "hint", hint, "error", err.Error())
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	return hits[0].ID
}

func (d *Dispatcher) summarizeEmails(ctx context.Context, userText string, intent Intent) ActionResult {
	acct := d.account(intent)
	baseDetails := map[string]any{
		"account_email": acct,
		"time_window":   intent.TimeWindow,
	}
	if intent.Focus != "" {
		baseDetails["focus"] = intent.Focus
	}

	var window *datewindow.Window
	if intent.TimeWindow != "" {
		w, err := datewindow.Resolve(intent.TimeWindow, d.now(), d.loc())
		if err != nil {
			return failure("summarize_emails", windowErrorText(err, intent.TimeWindow), baseDetails)
		}
		window = &w
	}

	query := composeGmailQuery(intent.Query, window, intent.Focus)
	fetchLimit := recentFetchLimit
	if window != nil {
		fetchLimit = windowedFetchLimit
	}

	var raw []gmail.MessageSummary
	var err error
	if query != "" {
		raw, err = d.Gmail.Search(ctx, acct, query, fetchLimit)
	} else {
		raw, err = d.Gmail.ListRecent(ctx, acct, fetchLimit)
	}
	if err != nil {
		return failure("summarize_emails", fmt.Sprintf("I couldn't fetch your emails: %v", err), baseDetails)
	}

	messages := filterByWindow(raw, window)
	details := map[string]any{
		"action":              "summarize_emails",
		"account_email":       acct,
		"query":               query,
		"time_window":         intent.TimeWindow,
		"messages_considered": len(messages),
	}
	if intent.Focus != "" {
		details["focus"] = intent.Focus
	}
	if window != nil {
		details["date_range"] = map[string]string{
			"start": window.Start.Format("2006-01-02"),
			"end":   window.End.Format("2006-01-02"),
		}
	}

	if len(messages) == 0 {
		text := "I couldn't find any emails that match that request."
		if window != nil {
			text = fmt.Sprintf("I couldn't find emails between %s and %s within the last %d days.",
				window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), datewindow.MaxLookbackDays)
		}
		details["status"] = "empty"
		return ActionResult{Success: true, Status: "empty", Summary: text, Details: details}
	}

	input := messages
	if len(input) > summaryInputLimit {
		input = input[:summaryInputLimit]
	}
	payload, _ := json.Marshal(input)
	res, err := d.LLM.Chat(ctx, llm.Request{
		Model:       d.Config.Model,
		Temperature: 0.2,
		Seed:        42,
		Messages: []llm.Message{
			{Role: "system", Content: summarizeEmailsPrompt},
			{Role: "user", Content: "User request: " + userText},
			{Role: "user", Content: "Local timezone: " + d.loc().String()},
			{Role: "user", Content: "Recent emails (JSON array):"},
			{Role: "user", Content: truncateForPrompt(string(payload), promptPayloadLimit)},
		},
	})
	if err != nil {
		return failure("summarize_emails", fmt.Sprintf("I found %d matching emails but couldn't summarize them: %v", len(messages), err), details)
	}

	details["status"] = "summarized"
	preview := messages
	if len(preview) > 5 {
		preview = preview[:5]
	}
	details["messages_preview"] = preview
	return ActionResult{Success: true, Status: "summarized", Summary: res.Text, Details: details}
}

func windowErrorText(err error, phrase string) string {
	if errors.Is(err, datewindow.ErrBeyondLookback) {
		return fmt.Sprintf("I can only access emails from the last %d days.", datewindow.MaxLookbackDays)
	}
	return fmt.Sprintf("I couldn't understand the time window %q. Try \"yesterday\", \"last week\", or a specific date like \"July 14\".", phrase)
}

// composeGmailQuery builds a Gmail search string from the user's own query,
// the resolved window and any focus keywords. Date bounds are padded one day
// each side because Gmail's after:/before: are exclusive and imprecise at day
// boundaries; the local post-filter enforces the real window.
func composeGmailQuery(userQuery string, window *datewindow.Window, focus string) string {
	var parts []string
	if q := strings.TrimSpace(userQuery); q != "" {
		parts = append(parts, q)
	}
	if window != nil {
		after := window.StartDay().AddDate(0, 0, -1).Format("2006/01/02")
		before := window.EndDay().AddDate(0, 0, 1).Format("2006/01/02")
		parts = append(parts, "after:"+after, "before:"+before)
	}
	if focus != "" {
		focusLower := strings.ToLower(focus)
		if strings.Contains(focusLower, "important") {
			parts = append(parts, "label:important")
		}
		if strings.Contains(focusLower, "unread") {
			parts = append(parts, "is:unread")
		}
	}
	seen := map[string]bool{}
	unique := parts[:0]
	for _, p := range parts {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		unique = append(unique, p)
	}
	return strings.Join(unique, " ")
}

// filterByWindow is the source of truth for window correctness: messages whose
// own timestamp falls outside the window are dropped even when the provider
// query returned them. Messages without a parseable timestamp are kept.
func filterByWindow(messages []gmail.MessageSummary, window *datewindow.Window) []gmail.MessageSummary {
	if window == nil {
		return messages
	}
	out := make([]gmail.MessageSummary, 0, len(messages))
	for _, m := range messages {
		ts, ok := m.InternalTime()
		if !ok {
			out = append(out, m)
			continue
		}
		if window.Contains(ts) {
			out = append(out, m)
		}
	}
	return out
}

func (d *Dispatcher) calendlyLookup(ctx context.Context, intent Intent) ActionResult {
	key := d.calendlyKey(intent)
	day := datewindow.ResolveDay(intent.DateRef, d.now(), d.loc())
	daypart := intent.Daypart
	if daypart == "" {
		daypart = "day"
	}
	dateISO := day.Format("2006-01-02")

	events, err := d.Calendly.ListEventsOn(ctx, key, day, daypart, d.loc())
	if err != nil {
		return failure("calendly_lookup", fmt.Sprintf("I couldn't fetch your Calendly events: %v", err),
			map[string]any{"calendly_key": key, "date": dateISO, "window": daypart})
	}

	details := map[string]any{
		"action":       "calendly_lookup",
		"calendly_key": key,
		"date":         dateISO,
		"window":       daypart,
		"events":       events,
	}
	if len(events) == 0 {
		details["status"] = "empty"
		return ActionResult{
			Success: true,
			Status:  "empty",
			Summary: fmt.Sprintf("No hosted Calendly events found on %s (%s).", dateISO, daypart),
			Details: details,
		}
	}

	payload, _ := json.Marshal(events)
	res, err := d.LLM.Chat(ctx, llm.Request{
		Model:       d.Config.Model,
		Temperature: 0.2,
		Seed:        42,
		Messages: []llm.Message{
			{Role: "system", Content: summarizeEventsPrompt},
			{Role: "user", Content: fmt.Sprintf("Date: %s  Window: %s  TZ: %s", dateISO, daypart, d.loc().String())},
			{Role: "user", Content: truncateForPrompt(string(payload), promptPayloadLimit)},
		},
	})
	if err != nil {
		return failure("calendly_lookup", fmt.Sprintf("I found %d events but couldn't summarize them: %v", len(events), err), details)
	}
	details["status"] = "ok"
	return ActionResult{Success: true, Status: "ok", Summary: res.Text, Details: details}
}

func (d *Dispatcher) sendSchedulingLink(ctx context.Context, intent Intent) ActionResult {
	acct := d.account(intent)
	key := d.calendlyKey(intent)
	ownerType := intent.OwnerType
	if ownerType == "" {
		ownerType = "EventType"
	}

	link, err := d.Calendly.CreateSchedulingLink(ctx, key, ownerType, 1)
	if err != nil {
		// Link creation failed: no email goes out.
		return failure("send_scheduling_link", "I couldn't generate a Calendly scheduling link.",
			map[string]any{"calendly_key": key, "account_email": acct, "error": err.Error()})
	}

	details := map[string]any{
		"action":        "send_scheduling_link",
		"account_email": acct,
		"calendly_key":  key,
		"link":          link,
	}

	if len(intent.To) == 0 {
		details["status"] = "created"
		return ActionResult{
			Success: true,
			Status:  "created",
			Summary: "Scheduling link: " + link.URL,
			Details: details,
		}
	}

	body := intent.Message
	if body == "" {
		body = "Here is my Calendly link to book a time: " + link.URL
	} else if !strings.Contains(body, link.URL) {
		body = body + "\n\n" + link.URL
	}
	subject := intent.Subject
	if subject == "" {
		subject = "Schedule a time"
	}

	res, simulated, err := d.deliver(ctx, acct, gmail.OutgoingMessage{
		To:      intent.To,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		details["status"] = "error"
		details["error"] = err.Error()
		return ActionResult{
			Success: false,
			Status:  "error",
			Summary: fmt.Sprintf("I created the scheduling link (%s) but couldn't email it: %v", link.URL, err),
			Details: details,
		}
	}

	details["to"] = intent.To
	details["message_id"] = res.ID
	if res.ThreadID != "" {
		details["thread_id"] = res.ThreadID
	}
	if simulated {
		details["status"] = "simulated"
		return ActionResult{
			Success: true,
			Status:  "simulated",
			Summary: fmt.Sprintf("Dry run: I would send scheduling link (%s) to %s.", link.URL, strings.Join(intent.To, ", ")),
			Details: details,
		}
	}
	details["status"] = "sent"
	return ActionResult{
		Success: true,
		Status:  "sent",
		Summary: fmt.Sprintf("Sent scheduling link (%s) to %s. id=%s", link.URL, strings.Join(intent.To, ", "), res.ID),
		Details: details,
	}
}

func (d *Dispatcher) other(intent Intent) ActionResult {
	summary := intent.Note
	if summary == "" {
		summary = "I can send an email, summarize your inbox, look up Calendly events, or share a scheduling link. What would you like to do?"
	}
	return ActionResult{
		Success: true,
		Status:  "ok",
		Summary: summary,
		Details: map[string]any{"action": "freeform", "status": "ok"},
	}
}
