package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/calendly"
	"github.com/Kaif10/multi-agent-assistant/datewindow"
	"github.com/Kaif10/multi-agent-assistant/internal/tokenstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCalendlyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendly",
		Short: "Inspect Calendly directly, bypassing the router",
	}
	cmd.AddCommand(newCalendlyEventsCmd())
	cmd.AddCommand(newCalendlyLinkCmd())
	return cmd
}

func calendlyClientFromViper(cmd *cobra.Command) (*calendly.Client, string) {
	key := strings.TrimSpace(flagOrViperString(cmd, "key", "calendly.default_key"))
	store := tokenstore.New(viper.GetString("tokens_dir"))
	return calendly.New(store), key
}

func newCalendlyEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List hosted events for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, key := calendlyClientFromViper(cmd)

			loc, err := time.LoadLocation(viper.GetString("local_tz"))
			if err != nil {
				return fmt.Errorf("invalid local_tz: %w", err)
			}

			dateRef, _ := cmd.Flags().GetString("date")
			window, _ := cmd.Flags().GetString("window")
			day := datewindow.ResolveDay(dateRef, time.Now(), loc)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			events, err := c.ListEventsOn(ctx, key, day, window, loc)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No hosted events on %s (%s).\n", day.Format("2006-01-02"), window)
				return nil
			}
			return printIndented(cmd, events)
		},
	}
	cmd.Flags().String("key", "", "Calendly token key (defaults to configured key).")
	cmd.Flags().String("date", "today", "Day to inspect: today, yesterday, a weekday or YYYY-MM-DD.")
	cmd.Flags().String("window", "day", "Daypart: morning, afternoon, evening or day.")
	return cmd
}

func newCalendlyLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create a single-use scheduling link",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, key := calendlyClientFromViper(cmd)
			ownerType, _ := cmd.Flags().GetString("owner-type")
			maxCount, _ := cmd.Flags().GetInt("max-count")

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			link, err := c.CreateSchedulingLink(ctx, key, ownerType, maxCount)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), link.URL)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Calendly token key (defaults to configured key).")
	cmd.Flags().String("owner-type", "EventType", "Scheduling link owner type.")
	cmd.Flags().Int("max-count", 1, "Max bookings through the link.")
	return cmd
}
