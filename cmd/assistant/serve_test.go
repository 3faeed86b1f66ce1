package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/router"
)

type stubGmailBackend struct {
	recent      []gmail.MessageSummary
	searched    []gmail.MessageSummary
	lastQuery   string
	lastMax     int
	detail      gmail.MessageDetail
	sent        []gmail.OutgoingMessage
	recentCalls int
}

func (s *stubGmailBackend) ListRecent(_ context.Context, _ string, max int) ([]gmail.MessageSummary, error) {
	s.recentCalls++
	s.lastMax = max
	return s.recent, nil
}

func (s *stubGmailBackend) Search(_ context.Context, _ string, query string, max int) ([]gmail.MessageSummary, error) {
	s.lastQuery = query
	s.lastMax = max
	return s.searched, nil
}

func (s *stubGmailBackend) Get(_ context.Context, _, id string, _ bool) (gmail.MessageDetail, error) {
	d := s.detail
	d.ID = id
	return d, nil
}

func (s *stubGmailBackend) Send(_ context.Context, _ string, msg gmail.OutgoingMessage) (gmail.SendResult, error) {
	s.sent = append(s.sent, msg)
	return gmail.SendResult{ID: "m-1", ThreadID: "t-1"}, nil
}

type stubCalendlyBackend struct {
	events  []calendly.Event
	link    calendly.Link
	lastDay time.Time
}

func (s *stubCalendlyBackend) ListEventsOn(_ context.Context, _ string, day time.Time, _ string, _ *time.Location) ([]calendly.Event, error) {
	s.lastDay = day
	return s.events, nil
}

func (s *stubCalendlyBackend) CreateSchedulingLink(_ context.Context, _, _ string, _ int) (calendly.Link, error) {
	return s.link, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(gm *stubGmailBackend, cal *stubCalendlyBackend, cfg router.Config) *routeServer {
	return &routeServer{
		gmail:    gm,
		calendly: cal,
		config:   cfg,
		logger:   discardLogger(),
	}
}

func TestAuthorized(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"Bearer secret", true},
		{"Bearer  secret", true},
		{"Bearer wrong", false},
		{"secret", false},
		{"", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/route", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := authorized(req, "secret"); got != tc.want {
			t.Fatalf("authorized(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestMuxRequiresAuthToken(t *testing.T) {
	srv := newTestServer(&stubGmailBackend{}, &stubCalendlyBackend{}, router.Config{})
	srv.authToken = "secret"
	mux := srv.mux()

	req := httptest.NewRequest("POST", "/gmail/list", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("/health must not require auth, got %d", rec.Code)
	}
}

func TestGmailRecentCallsBackendDirectly(t *testing.T) {
	gm := &stubGmailBackend{recent: []gmail.MessageSummary{{ID: "a"}}}
	srv := newTestServer(gm, &stubCalendlyBackend{}, router.Config{})

	req := httptest.NewRequest("GET", "/gmail/recent?max=5", nil)
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gm.recentCalls != 1 || gm.lastMax != 5 {
		t.Fatalf("ListRecent calls = %d max = %d", gm.recentCalls, gm.lastMax)
	}
	var out struct {
		OK       bool                   `json:"ok"`
		Messages []gmail.MessageSummary `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || len(out.Messages) != 1 || out.Messages[0].ID != "a" {
		t.Fatalf("out = %+v", out)
	}
}

func TestGmailSearchHandler(t *testing.T) {
	gm := &stubGmailBackend{searched: []gmail.MessageSummary{{ID: "x"}}}
	srv := newTestServer(gm, &stubCalendlyBackend{}, router.Config{})

	body := `{"account_email":"me@example.com","query":"from:alex","max_results":3}`
	req := httptest.NewRequest("POST", "/gmail/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gm.lastQuery != "from:alex" || gm.lastMax != 3 {
		t.Fatalf("query = %q max = %d", gm.lastQuery, gm.lastMax)
	}

	req = httptest.NewRequest("POST", "/gmail/search", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("missing query: status = %d, want 400", rec.Code)
	}
}

func TestGmailGetHandler(t *testing.T) {
	gm := &stubGmailBackend{}
	srv := newTestServer(gm, &stubCalendlyBackend{}, router.Config{})

	req := httptest.NewRequest("POST", "/gmail/get", strings.NewReader(`{"id":"msg-9"}`))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "msg-9") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGmailSendHandlerDryRun(t *testing.T) {
	gm := &stubGmailBackend{}
	srv := newTestServer(gm, &stubCalendlyBackend{}, router.Config{DryRun: true})

	body := `{"to":["alex@example.com"],"subject":"Hi","body":"Hello"}`
	req := httptest.NewRequest("POST", "/gmail/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(gm.sent) != 0 {
		t.Fatalf("dry run must not send, sent %d", len(gm.sent))
	}
	if !strings.Contains(rec.Body.String(), `"simulated"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGmailSendHandlerDelivers(t *testing.T) {
	gm := &stubGmailBackend{}
	srv := newTestServer(gm, &stubCalendlyBackend{}, router.Config{})

	body := `{"to":["alex@example.com"],"subject":"Hi","body":"Hello"}`
	req := httptest.NewRequest("POST", "/gmail/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(gm.sent) != 1 || gm.sent[0].To[0] != "alex@example.com" {
		t.Fatalf("sent = %+v", gm.sent)
	}

	req = httptest.NewRequest("POST", "/gmail/send", strings.NewReader(`{"subject":"Hi","body":"x"}`))
	rec = httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("missing to: status = %d, want 400", rec.Code)
	}
}

func TestCalendlyEventsHandler(t *testing.T) {
	cal := &stubCalendlyBackend{events: []calendly.Event{{Name: "Intro call"}}}
	loc, _ := time.LoadLocation("Europe/London")
	srv := newTestServer(&stubGmailBackend{}, cal, router.Config{Timezone: loc})

	req := httptest.NewRequest("POST", "/calendly/events", strings.NewReader(`{"date":"2025-09-26","window":"afternoon"}`))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := cal.lastDay.Format("2006-01-02"); got != "2025-09-26" {
		t.Fatalf("day = %s", got)
	}
	if !strings.Contains(rec.Body.String(), `"afternoon"`) || !strings.Contains(rec.Body.String(), "Intro call") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestCalendlyLinkHandler(t *testing.T) {
	cal := &stubCalendlyBackend{link: calendly.Link{URL: "https://calendly.com/d/abc"}}
	srv := newTestServer(&stubGmailBackend{}, cal, router.Config{})

	req := httptest.NewRequest("POST", "/calendly/link", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "https://calendly.com/d/abc") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestParseSlogLevel(t *testing.T) {
	if _, err := parseSlogLevel("debug"); err != nil {
		t.Fatalf("debug: %v", err)
	}
	if _, err := parseSlogLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
