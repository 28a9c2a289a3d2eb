package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/risk"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <score>",
	Short: "Show the risk tier and guidance for a score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
		if err != nil {
			return fmt.Errorf("invalid score %q: %w", args[0], err)
		}

		a := risk.Assess(score)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Score:     %s\n", risk.FormatScore(a.Score))
		fmt.Fprintf(out, "Risk:      %s\n", a.Level.Label())
		fmt.Fprintf(out, "Guidance:  %s\n", a.Guidance)

		if show, _ := cmd.Flags().GetBool("thresholds"); show {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-8s  %s\n", "Tier", "Scores")
			fmt.Fprintln(out, strings.Repeat("─", 30))
			fmt.Fprintf(out, "%-8s  < %s\n", risk.LevelLow.Label(), risk.FormatScore(risk.MediumThreshold))
			fmt.Fprintf(out, "%-8s  %s to < %s\n", risk.LevelMedium.Label(),
				risk.FormatScore(risk.MediumThreshold), risk.FormatScore(risk.HighThreshold))
			fmt.Fprintf(out, "%-8s  >= %s\n", risk.LevelHigh.Label(), risk.FormatScore(risk.HighThreshold))
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("thresholds", false, "Also print the tier boundaries")
}
