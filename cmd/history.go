package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/logging"
	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
	"github.com/mindbridge/mindbridge/internal/store"
)

const timeLayout = "2006-01-02 15:04"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past check-ins",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past check-ins (from the service, or this device with --local)",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		local, _ := cmd.Flags().GetBool("local")
		out := cmd.OutOrStdout()

		if local {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.ResultRepo().List(cmd.Context(), store.QueryOpts{Limit: limit})
			if err != nil {
				return fmt.Errorf("list outcomes: %w", err)
			}
			printLocalHistory(out, records)
			return nil
		}

		api, err := remoteAPI(cmd)
		if err != nil {
			return err
		}
		sessions, err := api.FetchHistory(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if limit > 0 && len(sessions) > limit {
			sessions = sessions[:limit]
		}
		printRemoteHistory(out, sessions)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one past check-in with its responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI(cmd)
		if err != nil {
			return err
		}
		detail, err := api.FetchSessionDetail(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("fetch session: %w", err)
		}
		printDetail(cmd.OutOrStdout(), detail)
		return nil
	},
}

var historyEventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Show the recorded state transitions of a check-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().SessionEvents(cmd.Context(), args[0], store.QueryOpts{})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		printEvents(cmd.OutOrStdout(), events)
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "Maximum number of check-ins to show (0 = all)")
	historyListCmd.Flags().Bool("local", false, "Read outcomes saved on this device instead of the service")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyEventsCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

// remoteAPI builds a client for one-shot commands. Warnings go to stderr.
func remoteAPI(cmd *cobra.Command) (sessionclient.API, error) {
	cfg, err := resolveClientConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("assessment service not configured: %w", err)
	}
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = "warn"
	}
	logger := logging.New(logging.Config{Level: level, Output: cmd.ErrOrStderr()})
	return buildAPI(cfg, logger, prometheus.NewRegistry())
}

func printRemoteHistory(w io.Writer, sessions []sessionclient.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No check-ins found.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-16s  %-10s  %6s  %s\n",
		"Session", "Date", "Status", "Score", "Risk")
	fmt.Fprintln(w, strings.Repeat("─", 84))

	for _, s := range sessions {
		score, level := "-", "-"
		if s.Score != nil {
			score = risk.FormatScore(*s.Score)
			level = string(risk.Classify(*s.Score))
		} else if s.RiskLevel != "" {
			level = s.RiskLevel
		}
		when := s.CompletedAt
		if when == nil {
			when = s.CreatedAt
		}
		fmt.Fprintf(w, "%-36s  %-16s  %-10s  %6s  %s\n",
			s.SessionID, formatTime(when), orDash(s.Status), score, level)
	}

	fmt.Fprintf(w, "\n%d check-ins\n", len(sessions))
}

func printLocalHistory(w io.Writer, records []store.OutcomeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No check-ins saved on this device.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-16s  %6s  %-6s  %-8s  %s\n",
		"Session", "Date", "Score", "Risk", "Source", "Answered")
	fmt.Fprintln(w, strings.Repeat("─", 92))

	for _, r := range records {
		answered := fmt.Sprintf("%d + %d", r.StaticAnswered, r.DynamicAnswered)
		if r.FailSafe != "" {
			answered += " (ended early)"
		}
		fmt.Fprintf(w, "%-36s  %-16s  %6s  %-6s  %-8s  %s\n",
			r.SessionID, formatTime(&r.CompletedAt), risk.FormatScore(r.Score),
			r.RiskLevel, r.ScoreSource, answered)
	}

	fmt.Fprintf(w, "\n%d check-ins\n", len(records))
}

func printDetail(w io.Writer, d *sessionclient.SessionDetail) {
	sep := strings.Repeat("─", 60)

	fmt.Fprintf(w, "Session:   %s\n", d.SessionID)
	fmt.Fprintf(w, "Status:    %s\n", orDash(d.Status))
	fmt.Fprintf(w, "Started:   %s\n", formatTime(d.CreatedAt))
	fmt.Fprintf(w, "Completed: %s\n", formatTime(d.CompletedAt))
	if d.Score != nil {
		a := risk.Assess(*d.Score)
		fmt.Fprintf(w, "Score:     %s\n", risk.FormatScore(*d.Score))
		fmt.Fprintf(w, "Risk:      %s\n", a.Level.Label())
		if d.RiskLevel != "" && d.RiskLevel != string(a.Level) {
			fmt.Fprintf(w, "Service:   %s\n", d.RiskLevel)
		}
	}
	if d.Summary != "" {
		fmt.Fprintf(w, "Summary:   %s\n", d.Summary)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, sep)
	fmt.Fprintln(w, "RESPONSES")
	fmt.Fprintln(w, sep)
	if len(d.Responses) == 0 {
		fmt.Fprintln(w, "(none recorded)")
		return
	}
	for i, r := range d.Responses {
		origin := string(r.Origin)
		if origin == "" {
			origin = "-"
		}
		fmt.Fprintf(w, "%2d. [%s] %s\n    %s\n", i+1, origin, r.QuestionText, r.Answer)
	}
}

func printEvents(w io.Writer, events []store.SessionEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded for this check-in.")
		return
	}

	fmt.Fprintf(w, "%-5s  %-19s  %-18s  %-18s  %s\n",
		"Seq", "Timestamp", "From", "To", "Reason")
	fmt.Fprintln(w, strings.Repeat("─", 84))

	for _, e := range events {
		fmt.Fprintf(w, "%-5d  %-19s  %-18s  %-18s  %s\n",
			e.Sequence,
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.From, e.To, e.Reason)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
