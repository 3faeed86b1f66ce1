package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/llm"
)

// scriptedLLM returns canned responses in order.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	requests  []llm.Request
}

func (s *scriptedLLM) Chat(_ context.Context, req llm.Request) (llm.Result, error) {
	s.requests = append(s.requests, req)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.Result{}, s.errs[i]
	}
	if i >= len(s.responses) {
		return llm.Result{}, errors.New("scripted llm: no response left")
	}
	return llm.Result{Text: s.responses[i]}, nil
}

type fakeGmail struct {
	recent     []gmail.MessageSummary
	searched   []gmail.MessageSummary
	searchErr  error
	lastQuery  string
	sent       []gmail.OutgoingMessage
	sendErr    error
	sendResult gmail.SendResult
}

func (f *fakeGmail) ListRecent(_ context.Context, _ string, _ int) ([]gmail.MessageSummary, error) {
	return f.recent, nil
}

func (f *fakeGmail) Search(_ context.Context, _ string, query string, _ int) ([]gmail.MessageSummary, error) {
	f.lastQuery = query
	return f.searched, f.searchErr
}

func (f *fakeGmail) Send(_ context.Context, _ string, msg gmail.OutgoingMessage) (gmail.SendResult, error) {
	f.sent = append(f.sent, msg)
	if f.sendErr != nil {
		return gmail.SendResult{}, f.sendErr
	}
	if f.sendResult.ID == "" {
		return gmail.SendResult{ID: "m-1", ThreadID: "t-1"}, nil
	}
	return f.sendResult, nil
}

type fakeCalendly struct {
	events  []calendly.Event
	listErr error
	link    calendly.Link
	linkErr error
	created int
}

func (f *fakeCalendly) ListEventsOn(_ context.Context, _ string, _ time.Time, _ string, _ *time.Location) ([]calendly.Event, error) {
	return f.events, f.listErr
}

func (f *fakeCalendly) CreateSchedulingLink(_ context.Context, _, _ string, _ int) (calendly.Link, error) {
	f.created++
	return f.link, f.linkErr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() Config {
	loc, _ := time.LoadLocation("Europe/London")
	return Config{
		DefaultAccount:     "me@example.com",
		DefaultCalendlyKey: "default",
		Timezone:           loc,
		Model:              "gpt-4o-mini",
		Signature:          "Best,\nKaif",
	}
}

func TestRouteSendEmailDryRun(t *testing.T) {
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_email","to":"alex@example.com","subject":"Standup","message":"tell alex standup moved to 10"}`,
		`{"subject":"Standup moved","body_text":"Hi Alex,\n\nStandup moved to 10am.\n\nBest,\nKaif"}`,
	}}
	gm := &fakeGmail{}
	cfg := testConfig()
	cfg.DryRun = true
	r := New(llmStub, gm, &fakeCalendly{}, cfg, WithClock(fixedClock(time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC))))

	resp := r.Route(context.Background(), "email alex that standup moved to 10", RouteOptions{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if resp.Status != "simulated" {
		t.Fatalf("status = %q, want simulated", resp.Status)
	}
	if len(gm.sent) != 0 {
		t.Fatalf("dry run must not send, sent %d messages", len(gm.sent))
	}
	to, ok := resp.Details["to"].([]string)
	if !ok || len(to) != 1 || to[0] != "alex@example.com" {
		t.Fatalf("details.to = %v", resp.Details["to"])
	}
	if resp.Text == "" {
		t.Fatalf("text must be non-empty")
	}
}

func TestRouteSendEmailDelivers(t *testing.T) {
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_email","to":"alex@example.com","subject":"Plans","message":"ask about friday"}`,
		`{"subject":"Friday plans","body_text":"Hi Alex,\n\nAre you free Friday?"}`,
	}}
	gm := &fakeGmail{}
	r := New(llmStub, gm, &fakeCalendly{}, testConfig())

	resp := r.Route(context.Background(), "email alex about friday", RouteOptions{})
	if !resp.OK || resp.Status != "sent" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(gm.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(gm.sent))
	}
	msg := gm.sent[0]
	if msg.Subject != "Friday plans" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Best,\nKaif") {
		t.Fatalf("signature not appended: %q", msg.Body)
	}
}

func TestRouteSendEmailMissingRecipient(t *testing.T) {
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_email","message":"tell them the meeting moved"}`,
	}}
	gm := &fakeGmail{}
	r := New(llmStub, gm, &fakeCalendly{}, testConfig())

	resp := r.Route(context.Background(), "send an email about the meeting", RouteOptions{})
	// Missing recipient degrades to a clarification, not a send attempt.
	if resp.Kind != string(KindOther) {
		t.Fatalf("kind = %q, want other", resp.Kind)
	}
	if len(gm.sent) != 0 {
		t.Fatalf("must not send without recipient")
	}
	if resp.Text == "" {
		t.Fatalf("text must be non-empty")
	}
}

func TestRouteSummarizeYesterday(t *testing.T) {
	now := time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC)
	inWindow := time.Date(2025, 9, 26, 14, 0, 0, 0, time.UTC).UnixMilli()
	outWindow := time.Date(2025, 9, 24, 9, 0, 0, 0, time.UTC).UnixMilli()
	gm := &fakeGmail{searched: []gmail.MessageSummary{
		{ID: "a", InternalDate: formatMillis(inWindow), From: "boss@example.com", Subject: "Q3"},
		{ID: "b", InternalDate: formatMillis(outWindow), From: "spam@example.com", Subject: "Old"},
	}}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"summarize_emails","time_window":"yesterday"}`,
		`You got one email from your boss about Q3.`,
	}}
	r := New(llmStub, gm, &fakeCalendly{}, testConfig(), WithClock(fixedClock(now)))

	resp := r.Route(context.Background(), "summarize yesterday's emails", RouteOptions{})
	if !resp.OK || resp.Status != "summarized" {
		t.Fatalf("resp = %+v", resp)
	}
	if got := resp.Details["messages_considered"]; got != 1 {
		t.Fatalf("messages_considered = %v, want 1 (out-of-window message must be dropped)", got)
	}
	if !strings.Contains(gm.lastQuery, "after:2025/09/25") || !strings.Contains(gm.lastQuery, "before:2025/09/27") {
		t.Fatalf("query = %q, want padded day bounds", gm.lastQuery)
	}
}

func TestRouteSummarizeEmptyWindow(t *testing.T) {
	now := time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC)
	gm := &fakeGmail{searched: nil}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"summarize_emails","time_window":"last week"}`,
	}}
	r := New(llmStub, gm, &fakeCalendly{}, testConfig(), WithClock(fixedClock(now)))

	resp := r.Route(context.Background(), "what came in last week", RouteOptions{})
	if !resp.OK || resp.Status != "empty" {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "couldn't find emails between") {
		t.Fatalf("text = %q", resp.Text)
	}
	if llmStub.calls != 1 {
		t.Fatalf("no summarization call expected for empty window, got %d calls", llmStub.calls)
	}
}

func TestRouteSummarizeBeyondLookback(t *testing.T) {
	now := time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC)
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"summarize_emails","time_window":"January 2025"}`,
	}}
	r := New(llmStub, &fakeGmail{}, &fakeCalendly{}, testConfig(), WithClock(fixedClock(now)))

	resp := r.Route(context.Background(), "summarize emails from January", RouteOptions{})
	if resp.OK {
		t.Fatalf("window entirely beyond the horizon must fail: %+v", resp)
	}
	if !strings.Contains(resp.Text, "last 40 days") {
		t.Fatalf("text = %q", resp.Text)
	}
}

func TestRouteCalendlyLookup(t *testing.T) {
	now := time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC)
	cal := &fakeCalendly{events: []calendly.Event{
		{Name: "Intro call", StartTime: "2025-09-26T13:00:00Z", Status: "active"},
	}}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"calendly_lookup","date_ref":"yesterday","daypart":"afternoon"}`,
		`You hosted one intro call at 1pm.`,
	}}
	r := New(llmStub, &fakeGmail{}, cal, testConfig(), WithClock(fixedClock(now)))

	resp := r.Route(context.Background(), "who did I meet yesterday afternoon", RouteOptions{})
	if !resp.OK {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Details["date"] != "2025-09-26" {
		t.Fatalf("date = %v", resp.Details["date"])
	}
	events, ok := resp.Details["events"].([]calendly.Event)
	if !ok || len(events) != 1 {
		t.Fatalf("details.events = %v", resp.Details["events"])
	}
}

func TestRouteCalendlyLookupEmptyDay(t *testing.T) {
	now := time.Date(2025, 9, 27, 10, 0, 0, 0, time.UTC)
	cal := &fakeCalendly{}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"calendly_lookup","date_ref":"yesterday"}`,
	}}
	r := New(llmStub, &fakeGmail{}, cal, testConfig(), WithClock(fixedClock(now)))

	resp := r.Route(context.Background(), "any meetings yesterday?", RouteOptions{})
	if !resp.OK || resp.Status != "empty" {
		t.Fatalf("resp = %+v", resp)
	}
	events, ok := resp.Details["events"].([]calendly.Event)
	if !ok || len(events) != 0 {
		t.Fatalf("details.events must be present and empty, got %v", resp.Details["events"])
	}
	if llmStub.calls != 1 {
		t.Fatalf("no summarization call expected for empty day")
	}
}

func TestRouteSchedulingLinkFailureSkipsEmail(t *testing.T) {
	cal := &fakeCalendly{linkErr: errors.New("calendly 500")}
	gm := &fakeGmail{}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_scheduling_link","to":"alex@example.com"}`,
	}}
	r := New(llmStub, gm, cal, testConfig())

	resp := r.Route(context.Background(), "send alex my calendly link", RouteOptions{})
	if resp.OK {
		t.Fatalf("link failure must not be ok: %+v", resp)
	}
	if len(gm.sent) != 0 {
		t.Fatalf("email must be skipped when link creation fails")
	}
}

func TestRouteSchedulingLinkNoRecipient(t *testing.T) {
	cal := &fakeCalendly{link: calendly.Link{URL: "https://calendly.com/d/abc"}}
	gm := &fakeGmail{}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_scheduling_link"}`,
	}}
	r := New(llmStub, gm, cal, testConfig())

	resp := r.Route(context.Background(), "get me a scheduling link", RouteOptions{})
	if !resp.OK || resp.Status != "created" {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Text, "https://calendly.com/d/abc") {
		t.Fatalf("text = %q", resp.Text)
	}
	if len(gm.sent) != 0 {
		t.Fatalf("no email without a recipient")
	}
}

func TestRouteSchedulingLinkEmailsLink(t *testing.T) {
	cal := &fakeCalendly{link: calendly.Link{URL: "https://calendly.com/d/abc"}}
	gm := &fakeGmail{}
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"send_scheduling_link","to":"alex@example.com"}`,
	}}
	r := New(llmStub, gm, cal, testConfig())

	resp := r.Route(context.Background(), "send alex my calendly link", RouteOptions{})
	if !resp.OK || resp.Status != "sent" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(gm.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(gm.sent))
	}
	if !strings.Contains(gm.sent[0].Body, "https://calendly.com/d/abc") {
		t.Fatalf("body missing link: %q", gm.sent[0].Body)
	}
}

func TestRouteOtherNoSecondModelCall(t *testing.T) {
	llmStub := &scriptedLLM{responses: []string{
		`{"kind":"other"}`,
	}}
	r := New(llmStub, &fakeGmail{}, &fakeCalendly{}, testConfig())

	resp := r.Route(context.Background(), "what's the weather like", RouteOptions{})
	if !resp.OK {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Kind != string(KindOther) {
		t.Fatalf("kind = %q", resp.Kind)
	}
	if llmStub.calls != 1 {
		t.Fatalf("other must cost exactly one model call, got %d", llmStub.calls)
	}
	if resp.Text == "" {
		t.Fatalf("text must be non-empty")
	}
}

func TestRouteGarbageClassificationFallsBack(t *testing.T) {
	llmStub := &scriptedLLM{responses: []string{
		`I am not JSON at all`,
	}}
	r := New(llmStub, &fakeGmail{}, &fakeCalendly{}, testConfig())

	resp := r.Route(context.Background(), "gibberish", RouteOptions{})
	if resp.Kind != string(KindOther) {
		t.Fatalf("kind = %q, want other", resp.Kind)
	}
	if resp.Text == "" {
		t.Fatalf("text must be non-empty")
	}
}

func TestRouteClassifyTransportError(t *testing.T) {
	llmStub := &scriptedLLM{errs: []error{errors.New("connection refused")}}
	r := New(llmStub, &fakeGmail{}, &fakeCalendly{}, testConfig())

	resp := r.Route(context.Background(), "summarize my inbox", RouteOptions{})
	if resp.OK {
		t.Fatalf("resp must not be ok: %+v", resp)
	}
	if resp.Status != "error" {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.Kind != string(KindOther) {
		t.Fatalf("kind = %q, want other", resp.Kind)
	}
	if resp.Text == "" {
		t.Fatalf("even the failure envelope carries text")
	}
}

func TestNormalizeStripsMarkdown(t *testing.T) {
	resp := Normalize("q", Intent{Kind: KindSummarizeEmails}, ActionResult{
		Success: true,
		Status:  "summarized",
		Summary: "**Top items**\n- *Budget* approval from `finance`\n1. Reply to Alex",
	}, time.Now())
	if strings.ContainsAny(resp.Text, "*`#") {
		t.Fatalf("markdown survived: %q", resp.Text)
	}
	if resp.TextMarkdown == resp.Text {
		t.Fatalf("markdown variant should keep formatting")
	}
}

func formatMillis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
