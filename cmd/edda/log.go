package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	logSince  string
	logBranch string
	logLimit  int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		branch := logBranch
		if branch == "" {
			if branch, err = led.HeadBranch(ctx); err != nil {
				return err
			}
		}

		var since time.Time
		if logSince != "" {
			since, err = parseSince(logSince)
			if err != nil {
				return err
			}
		}

		events, err := led.IterEvents(ctx)
		if err != nil {
			return err
		}
		shown := 0
		for i := len(events) - 1; i >= 0 && (logLimit <= 0 || shown < logLimit); i-- {
			e := events[i]
			if e.Branch != branch {
				continue
			}
			if !since.IsZero() {
				ts, err := time.Parse(time.RFC3339, e.TS)
				if err == nil && ts.Before(since) {
					continue
				}
			}
			summary := e.PayloadString("text")
			if summary == "" {
				summary = e.PayloadString("title")
			}
			if summary == "" {
				summary = strings.Join(e.PayloadStrings("argv"), " ")
			}
			printf("[%s] %-16s %s (%s)\n", e.TS, e.EventType, summary, e.EventID)
			shown++
		}
		return nil
	},
}

// parseSince accepts RFC3339 or natural language ("yesterday 3pm").
func parseSince(input string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, input); err == nil {
		return ts, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, time.Now())
	if err != nil || result == nil {
		return time.Time{}, fmt.Errorf("cannot parse --since %q", input)
	}
	return result.Time, nil
}

var (
	decisionsDomain  string
	decisionsKeyword string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List active decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		rows, err := led.ActiveDecisions(cmd.Context(), decisionsDomain, decisionsKeyword)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			printf("No active decisions.\n")
			return nil
		}
		for _, r := range rows {
			if r.Reason != "" {
				printf("%s = %s (%s) [%s, %s]\n", r.Key, r.Value, r.Reason, r.Branch, r.EventID)
			} else {
				printf("%s = %s [%s, %s]\n", r.Key, r.Value, r.Branch, r.EventID)
			}
		}
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <key-or-domain>",
	Short: "Show the decision timeline for a key or domain, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		rows, err := led.DecisionTimeline(ctx, args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			// Fall back to a domain timeline.
			rows, err = led.DomainTimeline(ctx, args[0])
			if err != nil {
				return err
			}
		}
		for _, r := range rows {
			marker := " "
			if r.IsActive {
				marker = "*"
			}
			printf("%s [%s] %s = %s (%s)\n", marker, r.TS, r.Key, r.Value, r.EventID)
		}
		return nil
	},
}

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List decision domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		domains, err := led.ListDomains(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range domains {
			printf("%s\n", d)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logSince, "since", "", "only events after this time (RFC3339 or natural language)")
	logCmd.Flags().StringVar(&logBranch, "branch", "", "branch to show (default: HEAD)")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "max events to show")
	decisionsCmd.Flags().StringVar(&decisionsDomain, "domain", "", "filter by exact domain")
	decisionsCmd.Flags().StringVar(&decisionsKeyword, "keyword", "", "filter by keyword over key/value/reason")
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(domainsCmd)
}
