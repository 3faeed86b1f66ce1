package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/internal/tokenstore"
	"github.com/Kaif10/multi-agent-assistant/llm"
	"github.com/Kaif10/multi-agent-assistant/providers/openai"
	"github.com/Kaif10/multi-agent-assistant/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route [text]",
		Short: "Route a natural-language request to email or Calendly actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				data, err := os.ReadFile("/dev/stdin")
				if err == nil {
					text = strings.TrimSpace(string(data))
				}
			}
			if text == "" {
				return fmt.Errorf("missing request text (argument or stdin)")
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			r, err := routerFromViper(cmd, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), flagOrViperDuration(cmd, "timeout", "timeout"))
			defer cancel()

			resp := r.Route(ctx, text, router.RouteOptions{
				AccountEmail: strings.TrimSpace(flagOrViperString(cmd, "account", "default_account_email")),
				CalendlyKey:  strings.TrimSpace(flagOrViperString(cmd, "calendly-key", "calendly.default_key")),
			})
			printResponse(cmd, resp, flagOrViperBool(cmd, "json", ""))
			if !resp.OK {
				return fmt.Errorf("request failed: %s", resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().String("account", "", "Gmail account to act as (defaults to configured account).")
	cmd.Flags().String("calendly-key", "", "Calendly token key (defaults to configured key).")
	cmd.Flags().Bool("json", false, "Print the full response envelope as JSON.")
	cmd.Flags().Bool("dry-run", false, "Simulate email sends instead of delivering.")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Overall timeout.")

	return cmd
}

func printResponse(cmd *cobra.Command, resp router.RoutedResponse, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
}

// backends bundles the router with the concrete collaborators so callers that
// need direct Gmail/Calendly access (the HTTP server) share one wiring.
type backends struct {
	router   *router.Router
	gmail    *gmail.Client
	calendly *calendly.Client
	config   router.Config
}

func routerFromViper(cmd *cobra.Command, logger *slog.Logger) (*router.Router, error) {
	b, err := backendsFromViper(cmd, logger)
	if err != nil {
		return nil, err
	}
	return b.router, nil
}

func backendsFromViper(cmd *cobra.Command, logger *slog.Logger) (*backends, error) {
	cfg, err := routerConfigFromViper(cmd)
	if err != nil {
		return nil, err
	}
	return backendsFromConfig(cfg, logger)
}

func backendsFromConfig(cfg router.Config, logger *slog.Logger) (*backends, error) {
	client, err := llmClientFromConfig(llmClientConfig{
		Endpoint:       strings.TrimSpace(viper.GetString("endpoint")),
		APIKey:         strings.TrimSpace(viper.GetString("api_key")),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	})
	if err != nil {
		return nil, err
	}

	store := tokenstore.New(viper.GetString("tokens_dir"))

	gm := gmail.New(gmail.StoreSource{Store: store, DefaultAccount: cfg.DefaultAccount})
	gm.DownloadDir = viper.GetString("download_dir")

	cal := calendly.New(store)

	return &backends{
		router:   router.New(client, gm, cal, cfg, router.WithLogger(logger)),
		gmail:    gm,
		calendly: cal,
		config:   cfg,
	}, nil
}

func routerConfigFromViper(cmd *cobra.Command) (router.Config, error) {
	tzName := strings.TrimSpace(viper.GetString("local_tz"))
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return router.Config{}, fmt.Errorf("invalid local_tz %q: %w", tzName, err)
	}

	dryRun := viper.GetBool("dry_run")
	if cmd != nil && cmd.Flags().Changed("dry-run") {
		dryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	return router.Config{
		DefaultAccount:     strings.TrimSpace(viper.GetString("default_account_email")),
		DefaultCalendlyKey: strings.TrimSpace(viper.GetString("calendly.default_key")),
		Timezone:           loc,
		DryRun:             dryRun,
		Model:              strings.TrimSpace(viper.GetString("model")),
		Signature:          viper.GetString("signature"),
	}, nil
}

type llmClientConfig struct {
	Endpoint       string
	APIKey         string
	RequestTimeout time.Duration
}

func llmClientFromConfig(cfg llmClientConfig) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing api_key (set ASSISTANT_API_KEY or api_key in config)")
	}
	c := openai.New(cfg.Endpoint, cfg.APIKey)
	if cfg.RequestTimeout > 0 && c.HTTP != nil {
		c.HTTP.Timeout = cfg.RequestTimeout
	}
	return c, nil
}
