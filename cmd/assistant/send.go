package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email with an explicit subject and body (no drafting)",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetStringSlice("to")
			subject, _ := cmd.Flags().GetString("subject")
			body, _ := cmd.Flags().GetString("body")
			cc, _ := cmd.Flags().GetStringSlice("cc")
			bcc, _ := cmd.Flags().GetStringSlice("bcc")
			replyTo, _ := cmd.Flags().GetString("in-reply-to")

			if len(to) == 0 {
				return fmt.Errorf("missing --to")
			}
			if strings.TrimSpace(body) == "" {
				return fmt.Errorf("missing --body")
			}

			if sig := viper.GetString("signature"); sig != "" && !strings.Contains(body, sig) {
				body = strings.TrimRight(body, "\n") + "\n\n" + sig
			}

			dryRun := viper.GetBool("dry_run")
			if cmd.Flags().Changed("dry-run") {
				dryRun, _ = cmd.Flags().GetBool("dry-run")
			}

			c, account := gmailClientFromViper(cmd)
			msg := gmail.OutgoingMessage{
				To:        to,
				Subject:   subject,
				Body:      body,
				Cc:        cc,
				Bcc:       bcc,
				InReplyTo: strings.TrimSpace(replyTo),
			}

			if dryRun {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dry run: would send %q to %s\n", subject, strings.Join(to, ", "))
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			res, err := c.Send(ctx, account, msg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent. id=%s thread=%s\n", res.ID, res.ThreadID)
			return nil
		},
	}

	cmd.Flags().String("account", "", "Gmail account (defaults to configured account).")
	cmd.Flags().StringSlice("to", nil, "Recipient (repeatable).")
	cmd.Flags().String("subject", "", "Subject line.")
	cmd.Flags().String("body", "", "Plain-text body.")
	cmd.Flags().StringSlice("cc", nil, "Cc recipient (repeatable).")
	cmd.Flags().StringSlice("bcc", nil, "Bcc recipient (repeatable).")
	cmd.Flags().String("in-reply-to", "", "Message ID to reply to (threads the reply).")
	cmd.Flags().Bool("dry-run", false, "Simulate instead of delivering.")

	return cmd
}
