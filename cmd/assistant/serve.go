package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/datewindow"
	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/router"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the router and collaborator helpers over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "127.0.0.1"
			}
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8787
			}
			auth := strings.TrimSpace(flagOrViperString(cmd, "server-auth-token", "server.auth_token"))

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			b, err := backendsFromViper(cmd, logger)
			if err != nil {
				return err
			}

			srv := &routeServer{
				router:    b.router,
				gmail:     b.gmail,
				calendly:  b.calendly,
				config:    b.config,
				logger:    logger,
				authToken: auth,
			}

			addr := bind + ":" + strconv.Itoa(port)
			logger.Info("server_listening", "addr", addr, "auth", auth != "")
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.mux(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return httpSrv.ListenAndServe()
		},
	}

	cmd.Flags().String("server-bind", "127.0.0.1", "Bind address.")
	cmd.Flags().Int("server-port", 8787, "Listen port.")
	cmd.Flags().String("server-auth-token", "", "Bearer token required on every endpoint except /health (empty disables auth).")
	cmd.Flags().Bool("dry-run", false, "Simulate email sends instead of delivering.")

	return cmd
}

// gmailBackend is the slice of the Gmail client the helper endpoints use.
type gmailBackend interface {
	ListRecent(ctx context.Context, account string, maxResults int) ([]gmail.MessageSummary, error)
	Search(ctx context.Context, account, query string, maxResults int) ([]gmail.MessageSummary, error)
	Get(ctx context.Context, account, id string, downloadAttachments bool) (gmail.MessageDetail, error)
	Send(ctx context.Context, account string, msg gmail.OutgoingMessage) (gmail.SendResult, error)
}

type calendlyBackend interface {
	ListEventsOn(ctx context.Context, accountKey string, day time.Time, daypart string, loc *time.Location) ([]calendly.Event, error)
	CreateSchedulingLink(ctx context.Context, accountKey, ownerType string, maxCount int) (calendly.Link, error)
}

type routeServer struct {
	router    *router.Router
	gmail     gmailBackend
	calendly  calendlyBackend
	config    router.Config
	logger    *slog.Logger
	authToken string
}

func (s *routeServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/route", s.withAuth(http.MethodPost, s.handleRoute))
	mux.HandleFunc("/gmail/recent", s.withAuth(http.MethodGet, s.handleGmailRecent))
	mux.HandleFunc("/gmail/list", s.withAuth(http.MethodPost, s.handleGmailList))
	mux.HandleFunc("/gmail/search", s.withAuth(http.MethodPost, s.handleGmailSearch))
	mux.HandleFunc("/gmail/get", s.withAuth(http.MethodPost, s.handleGmailGet))
	mux.HandleFunc("/gmail/send", s.withAuth(http.MethodPost, s.handleGmailSend))
	mux.HandleFunc("/calendly/events", s.withAuth(http.MethodPost, s.handleCalendlyEvents))
	mux.HandleFunc("/calendly/link", s.withAuth(http.MethodPost, s.handleCalendlyLink))
	return mux
}

func (s *routeServer) withAuth(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if s.authToken != "" && !authorized(req, s.authToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if req.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
	}
}

func authorized(req *http.Request, want string) bool {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer") {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type routeRequest struct {
	Text         string `json:"text"`
	AccountEmail string `json:"account_email"`
	CalendlyKey  string `json:"calendly_key"`
}

func (s *routeServer) handleRoute(w http.ResponseWriter, req *http.Request) {
	reqID := uuid.NewString()

	var body routeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, reqID, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, reqID, "missing text")
		return
	}

	log := s.logger.With("request_id", reqID)
	log.Info("route_request", "chars", len(text))

	resp := s.router.Route(req.Context(), text, router.RouteOptions{
		AccountEmail: strings.TrimSpace(body.AccountEmail),
		CalendlyKey:  strings.TrimSpace(body.CalendlyKey),
	})
	log.Info("route_done", "kind", resp.Kind, "ok", resp.OK, "status", resp.Status)
	writeJSON(w, http.StatusOK, resp)
}

func (s *routeServer) handleGmailRecent(w http.ResponseWriter, req *http.Request) {
	account := strings.TrimSpace(req.URL.Query().Get("account"))
	max := 10
	if v := req.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	msgs, err := s.gmail.ListRecent(req.Context(), account, max)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})
}

type gmailListRequest struct {
	Account string `json:"account_email"`
	Query   string `json:"query"`
	Max     int    `json:"max_results"`
}

func (s *routeServer) handleGmailList(w http.ResponseWriter, req *http.Request) {
	var body gmailListRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	if body.Max <= 0 {
		body.Max = 10
	}
	msgs, err := s.gmail.ListRecent(req.Context(), strings.TrimSpace(body.Account), body.Max)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})
}

func (s *routeServer) handleGmailSearch(w http.ResponseWriter, req *http.Request) {
	var body gmailListRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	query := strings.TrimSpace(body.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "", "missing query")
		return
	}
	if body.Max <= 0 {
		body.Max = 10
	}
	msgs, err := s.gmail.Search(req.Context(), strings.TrimSpace(body.Account), query, body.Max)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})
}

type gmailGetRequest struct {
	Account  string `json:"account_email"`
	ID       string `json:"id"`
	Download bool   `json:"download_attachments"`
}

func (s *routeServer) handleGmailGet(w http.ResponseWriter, req *http.Request) {
	var body gmailGetRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	id := strings.TrimSpace(body.ID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "", "missing id")
		return
	}
	detail, err := s.gmail.Get(req.Context(), strings.TrimSpace(body.Account), id, body.Download)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": detail})
}

type gmailSendRequest struct {
	Account   string   `json:"account_email"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	InReplyTo string   `json:"in_reply_to"`
}

func (s *routeServer) handleGmailSend(w http.ResponseWriter, req *http.Request) {
	var body gmailSendRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	if len(body.To) == 0 {
		writeError(w, http.StatusBadRequest, "", "missing to")
		return
	}
	if strings.TrimSpace(body.Body) == "" {
		writeError(w, http.StatusBadRequest, "", "missing body")
		return
	}

	if s.config.DryRun {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"status": "simulated",
			"id":     "dry-run-" + uuid.NewString(),
			"to":     body.To,
		})
		return
	}

	res, err := s.gmail.Send(req.Context(), strings.TrimSpace(body.Account), gmail.OutgoingMessage{
		To:        body.To,
		Subject:   body.Subject,
		Body:      body.Body,
		Cc:        body.Cc,
		Bcc:       body.Bcc,
		InReplyTo: strings.TrimSpace(body.InReplyTo),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"status":    "sent",
		"id":        res.ID,
		"thread_id": res.ThreadID,
	})
}

type calendlyEventsRequest struct {
	Key     string `json:"calendly_key"`
	DateRef string `json:"date"`
	Window  string `json:"window"`
}

func (s *routeServer) handleCalendlyEvents(w http.ResponseWriter, req *http.Request) {
	var body calendlyEventsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	dateRef := strings.TrimSpace(body.DateRef)
	if dateRef == "" {
		dateRef = "today"
	}
	window := strings.TrimSpace(body.Window)
	if window == "" {
		window = "day"
	}
	loc := s.config.Timezone
	if loc == nil {
		loc = time.UTC
	}
	day := datewindow.ResolveDay(dateRef, time.Now(), loc)

	events, err := s.calendly.ListEventsOn(req.Context(), strings.TrimSpace(body.Key), day, window, loc)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"date":   day.Format("2006-01-02"),
		"window": window,
		"events": events,
	})
}

type calendlyLinkRequest struct {
	Key       string `json:"calendly_key"`
	OwnerType string `json:"owner_type"`
	MaxCount  int    `json:"max_event_count"`
}

func (s *routeServer) handleCalendlyLink(w http.ResponseWriter, req *http.Request) {
	var body calendlyLinkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	ownerType := strings.TrimSpace(body.OwnerType)
	if ownerType == "" {
		ownerType = "EventType"
	}
	if body.MaxCount <= 0 {
		body.MaxCount = 1
	}
	link, err := s.calendly.CreateSchedulingLink(req.Context(), strings.TrimSpace(body.Key), ownerType, body.MaxCount)
	if err != nil {
		writeError(w, http.StatusBadGateway, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "link": link})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, requestID, msg string) {
	payload := map[string]any{"ok": false, "error": msg}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	writeJSON(w, status, payload)
}
