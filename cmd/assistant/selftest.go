package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kaif10/multi-agent-assistant/router"
	"github.com/spf13/cobra"
)

// Canned prompts exercising each intent. Sends stay simulated unless
// --live is passed.
var selftestPrompts = []string{
	"summarize my emails from yesterday",
	"what calendly meetings did I host yesterday afternoon?",
	"send an email to test@example.com saying hi, this is a self-test",
	"send test@example.com my calendly scheduling link",
	"what's the capital of France?",
}

func newSelftestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Route a set of canned prompts end to end (sends are simulated by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			live, _ := cmd.Flags().GetBool("live")
			cfg, err := routerConfigFromViper(nil)
			if err != nil {
				return err
			}
			if !live {
				cfg.DryRun = true
			}

			b, err := backendsFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			r := b.router

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			failures := 0
			for i, prompt := range selftestPrompts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s\n", i+1, len(selftestPrompts), prompt)
				resp := r.Route(ctx, prompt, router.RouteOptions{})
				marker := "ok"
				if !resp.OK {
					failures++
					marker = "FAIL"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  [%s/%s] %s\n\n", marker, resp.Status, resp.Text)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d prompts failed", failures, len(selftestPrompts))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All prompts routed.")
			return nil
		},
	}
	cmd.Flags().Bool("live", false, "Actually deliver the test emails instead of simulating.")
	return cmd
}
