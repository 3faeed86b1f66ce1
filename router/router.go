// Package router turns free-text requests into email and calendar actions.
// A single LLM classification decides the intent, the dispatcher carries it
// out against Gmail and Calendly, and every outcome is normalized into the
// same response envelope.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/Kaif10/multi-agent-assistant/llm"
)

// Config carries the routing defaults shared by every request.
type Config struct {
	DefaultAccount     string
	DefaultCalendlyKey string
	Timezone           *time.Location
	DryRun             bool
	Model              string
	Signature          string
}

type Router struct {
	llm        llm.Client
	dispatcher *Dispatcher
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithClock fixes the router's notion of "now", used for date resolution.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func New(client llm.Client, gm GmailService, cal CalendlyService, cfg Config, opts ...Option) *Router {
	r := &Router{
		llm:    client,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dispatcher = &Dispatcher{
		Gmail:    gm,
		Calendly: cal,
		LLM:      client,
		Config:   cfg,
		Logger:   r.logger,
		Now:      r.now,
	}
	return r
}

// RouteOptions are per-request overrides of the configured defaults.
type RouteOptions struct {
	AccountEmail string
	CalendlyKey  string
}

// Route classifies text, dispatches the resulting intent and returns the
// normalized response. It never fails: collaborator errors, the model's
// included, come back inside the envelope.
func (r *Router) Route(ctx context.Context, text string, opts RouteOptions) RoutedResponse {
	start := r.now()
	cc := ClassifyContext{
		AccountEmail: r.config.DefaultAccount,
		CalendlyKey:  r.config.DefaultCalendlyKey,
	}
	if opts.AccountEmail != "" {
		cc.AccountEmail = opts.AccountEmail
	}
	if opts.CalendlyKey != "" {
		cc.CalendlyKey = opts.CalendlyKey
	}

	intent, err := Classify(ctx, r.llm, r.config.Model, text, cc)
	if err != nil {
		r.logger.Error("classify_failed", "error", err.Error())
		return Normalize(text, Intent{Kind: KindOther},
			ActionResult{
				Success: false,
				Status:  "error",
				Summary: "I couldn't reach the language model to understand that request. Please try again.",
				Details: map[string]any{"action": "classify", "status": "error", "error": err.Error()},
			}, r.now())
	}

	r.logger.Info("intent_classified", "kind", string(intent.Kind), "account", intent.AccountEmail)

	result := r.dispatcher.Dispatch(ctx, text, intent)
	resp := Normalize(text, intent, result, r.now())
	r.logger.Info("request_routed",
		"kind", string(intent.Kind),
		"ok", resp.OK,
		"status", resp.Status,
		"duration", r.now().Sub(start).String(),
	)
	return resp
}
