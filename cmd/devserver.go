package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/devbackend"
	"github.com/mindbridge/mindbridge/internal/logging"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a scripted assessment backend for local demos",
	Long: `Serve a fixed seven-question battery and scripted follow-ups on a local port.

The score is the sum of answer values. No data leaves the process and every
session is forgotten on exit. Point the client at it with
MINDBRIDGE_API_URL=http://<addr>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := devbackend.DefaultConfig()
		if err := env.ParseWithOptions(&cfg, env.Options{Prefix: sessionclient.EnvPrefix}); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}

		f := cmd.Flags()
		if f.Changed("addr") {
			cfg.Addr, _ = f.GetString("addr")
		}
		if f.Changed("token") {
			cfg.Token, _ = f.GetString("token")
		}
		if f.Changed("follow-ups") {
			cfg.FollowUps, _ = f.GetInt("follow-ups")
		}
		if f.Changed("fail-follow-up") {
			cfg.FailFollowUp, _ = f.GetInt("fail-follow-up")
		}
		if f.Changed("latency") {
			cfg.Latency, _ = f.GetDuration("latency")
		}
		if cfg.FollowUps < 0 {
			return fmt.Errorf("--follow-ups must not be negative")
		}

		level, _ := cmd.Flags().GetString("log-level")
		logger := logging.New(logging.Config{Level: level, Output: cmd.ErrOrStderr()})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", cfg.Addr)
		return devbackend.New(cfg, logger).ListenAndServe(ctx)
	},
}

func init() {
	d := devbackend.DefaultConfig()
	devserverCmd.Flags().String("addr", d.Addr, "Listen address")
	devserverCmd.Flags().String("token", "", "Required bearer token (empty accepts any)")
	devserverCmd.Flags().Int("follow-ups", d.FollowUps, "Follow-up questions per session")
	devserverCmd.Flags().Int("fail-follow-up", 0, "Answer this follow-up fetch (1-based) with 503")
	devserverCmd.Flags().Duration("latency", 0, "Delay added to every response")
}
