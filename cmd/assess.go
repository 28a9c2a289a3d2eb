package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/app"
	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/logging"
	"github.com/mindbridge/mindbridge/internal/screens/home"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
	"github.com/mindbridge/mindbridge/internal/store"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Start an interactive check-in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd)
	},
}

func init() {
	addAssessFlags(assessCmd)
}

func addAssessFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("skip-welcome", false, "Open the home screen directly")
	cmd.Flags().Bool("strict", false, "Treat protocol violations as programming errors (MINDBRIDGE_STRICT)")
	cmd.Flags().String("metrics-file", "", "Write client metrics in Prometheus text format on exit")
}

// runAssess opens the store, builds the session client, and launches the TUI.
func runAssess(cmd *cobra.Command) error {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return fmt.Errorf("resolve DB path: %w", err)
	}

	logger, closeLog, err := openLogger(cmd, store.LogPathFor(dbPath))
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	deps := home.Deps{
		Results: st.ResultRepo(),
		Events:  st.EventRepo(),
		Logger:  logger,
	}
	status := "offline"

	cfg, err := resolveClientConfig(cmd)
	if err != nil {
		// Past results stay browsable without a backend.
		fmt.Fprintln(os.Stderr, "Assessment service not configured:", err)
		fmt.Fprintln(os.Stderr, "New check-ins will be unavailable.")
		logger.Warn("assessment service not configured", "error", err)
	} else {
		reg := prometheus.NewRegistry()
		api, err := buildAPI(cfg, logger, reg)
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
			defer func() {
				if err := prometheus.WriteToTextfile(path, reg); err != nil {
					logger.Warn("write metrics", "path", path, "error", err)
				}
			}()
		}

		strict, _ := cmd.Flags().GetBool("strict")
		if !strict {
			strict = strictFromEnv()
		}
		deps.NewMachine = machineFactory(api, st.EventRepo(), strict, logger)
		status = hostOf(cfg.BaseURL)
		logger.Info("assessment service configured", "base_url", cfg.BaseURL, "strict", strict)
	}

	skip, _ := cmd.Flags().GetBool("skip-welcome")
	return app.Run(app.Options{
		Home:        deps,
		Status:      status,
		SkipWelcome: skip,
	})
}

// buildAPI assembles the client and its decorators: retry innermost,
// metrics outermost.
func buildAPI(cfg sessionclient.Config, logger *slog.Logger, reg prometheus.Registerer) (sessionclient.API, error) {
	client, err := sessionclient.New(cfg, cfg.TokenSource(), sessionclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create session client: %w", err)
	}
	api, err := sessionclient.WithCache(sessionclient.WithRetry(client, cfg.Retry), cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return sessionclient.WithMetrics(api, sessionclient.MustNewMetrics(reg)), nil
}

// machineFactory returns a constructor for per-assessment state machines
// whose transitions are appended to the local event log.
func machineFactory(api assessment.Service, events store.EventRepo, strict bool, logger *slog.Logger) func() *assessment.Machine {
	record := func(t assessment.Transition) {
		if t.SessionID == "" {
			return
		}
		data := store.SessionEventData{
			SessionID: t.SessionID,
			From:      t.From.String(),
			To:        t.To.String(),
			Timestamp: t.At,
		}
		if t.Reason != nil {
			data.Reason = t.Reason.Error()
		}
		if err := events.AppendSessionEvent(context.Background(), data); err != nil {
			logger.Warn("record session event", "session_id", t.SessionID, "error", err)
		}
	}
	return func() *assessment.Machine {
		return assessment.NewMachine(api,
			assessment.WithLogger(logger),
			assessment.WithStrict(strict),
			assessment.WithTransitionHook(record),
		)
	}
}

// openLogger builds the file logger. Nothing is logged to the terminal
// while the TUI owns it.
func openLogger(cmd *cobra.Command, defaultFile string) (*slog.Logger, func() error, error) {
	cfg := logging.Config{Level: "info", Format: "json"}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: sessionclient.EnvPrefix}); err != nil {
		return nil, nil, fmt.Errorf("parse log env: %w", err)
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.Level = l
	}
	if f, _ := cmd.Flags().GetString("log-file"); f != "" {
		cfg.File = f
	}
	if cfg.File == "" {
		cfg.File = defaultFile
	}
	logger, closeFn, err := logging.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return logger, closeFn, nil
}

func strictFromEnv() bool {
	var c struct {
		Strict bool `env:"STRICT"`
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: sessionclient.EnvPrefix}); err != nil {
		return false
	}
	return c.Strict
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}
