package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/sessionclient"
	"github.com/mindbridge/mindbridge/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mindbridge",
	Short: "Adaptive mental health check-in",
	Long: "mindbridge walks you through a short screening questionnaire, asks a few\n" +
		"follow-up questions chosen by the assessment service, and shows a risk tier\n" +
		"with guidance. It is a screening aid, not a diagnosis.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "Path to SQLite database file (overrides MINDBRIDGE_DB env var)")
	pf.String("api-url", "", "Assessment service base URL (overrides MINDBRIDGE_API_URL)")
	pf.String("token-file", "", "File holding the bearer token (overrides MINDBRIDGE_TOKEN_FILE)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Log file path (default: next to the database)")

	addAssessFlags(rootCmd)

	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then MINDBRIDGE_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

// resolveClientConfig reads MINDBRIDGE_* variables and applies flag
// overrides on top.
func resolveClientConfig(cmd *cobra.Command) (sessionclient.Config, error) {
	cfg, err := sessionclient.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if u, _ := cmd.Flags().GetString("api-url"); u != "" {
		cfg.BaseURL = u
	}
	if f, _ := cmd.Flags().GetString("token-file"); f != "" {
		cfg.TokenFile = f
	}
	return cfg, cfg.Validate()
}
