package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var promoteSummary string

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Append an entry to short-term memory",
	Long:  `Append a timestamped entry to today's short-term memory file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

var promoteCmd = &cobra.Command{
	Use:   "promote <text>",
	Short: "Promote an entry to long-term memory",
	Long:  `Append an entry to MEMORY.md, optionally with a one-line summary.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPromote,
}

func init() {
	promoteCmd.Flags().StringVar(&promoteSummary, "summary", "", "one-line summary for the entry")
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(promoteCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	if err := mgr.AppendToShortTerm(strings.Join(args, " ")); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	fmt.Println("Remembered.")
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	if err := mgr.PromoteToLongTerm(strings.Join(args, " "), promoteSummary); err != nil {
		return fmt.Errorf("failed to promote entry: %w", err)
	}
	fmt.Println("Promoted to long-term memory.")
	return nil
}
