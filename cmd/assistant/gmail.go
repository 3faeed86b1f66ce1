package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/gmail"
	"github.com/Kaif10/multi-agent-assistant/internal/tokenstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newGmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gmail",
		Short: "Inspect Gmail directly, bypassing the router",
	}
	cmd.AddCommand(newGmailRecentCmd())
	cmd.AddCommand(newGmailSearchCmd())
	cmd.AddCommand(newGmailGetCmd())
	return cmd
}

func gmailClientFromViper(cmd *cobra.Command) (*gmail.Client, string) {
	account := strings.TrimSpace(flagOrViperString(cmd, "account", "default_account_email"))
	store := tokenstore.New(viper.GetString("tokens_dir"))
	c := gmail.New(gmail.StoreSource{Store: store, DefaultAccount: account})
	c.DownloadDir = viper.GetString("download_dir")
	return c, account
}

func newGmailRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent inbox messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, account := gmailClientFromViper(cmd)
			max, _ := cmd.Flags().GetInt("max")

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			msgs, err := c.ListRecent(ctx, account, max)
			if err != nil {
				return err
			}
			return printIndented(cmd, msgs)
		},
	}
	cmd.Flags().String("account", "", "Gmail account (defaults to configured account).")
	cmd.Flags().Int("max", 10, "Max messages.")
	return cmd
}

func newGmailSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search messages with Gmail query syntax",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, account := gmailClientFromViper(cmd)
			max, _ := cmd.Flags().GetInt("max")

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			msgs, err := c.Search(ctx, account, strings.Join(args, " "), max)
			if err != nil {
				return err
			}
			return printIndented(cmd, msgs)
		},
	}
	cmd.Flags().String("account", "", "Gmail account (defaults to configured account).")
	cmd.Flags().Int("max", 10, "Max messages.")
	return cmd
}

func newGmailGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <message-id>",
		Short: "Fetch a full message, optionally downloading attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, account := gmailClientFromViper(cmd)
			download, _ := cmd.Flags().GetBool("download")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			detail, err := c.Get(ctx, account, args[0], download)
			if err != nil {
				return err
			}
			return printIndented(cmd, detail)
		},
	}
	cmd.Flags().String("account", "", "Gmail account (defaults to configured account).")
	cmd.Flags().Bool("download", false, "Download attachments to the configured download_dir.")
	return cmd
}

func printIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
