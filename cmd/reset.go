package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindbridge/mindbridge/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete check-ins and logs saved on this device",
	Long: `Delete the local database and log file.

Sessions held by the assessment service are not affected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}

		out := cmd.OutOrStdout()
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			fmt.Fprintf(out, "Delete all local data in %s? [y/N] ", dbPath)
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(line)); a != "y" && a != "yes" {
				fmt.Fprintln(out, "Nothing deleted.")
				return nil
			}
		}

		files := []string{dbPath, dbPath + "-wal", dbPath + "-shm", store.LogPathFor(dbPath)}
		removed := 0
		for _, f := range files {
			err := os.Remove(f)
			switch {
			case err == nil:
				removed++
			case errors.Is(err, fs.ErrNotExist):
			default:
				return fmt.Errorf("remove %s: %w", f, err)
			}
		}

		if removed == 0 {
			fmt.Fprintln(out, "No local data found.")
			return nil
		}
		fmt.Fprintf(out, "Removed %d files.\n", removed)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
