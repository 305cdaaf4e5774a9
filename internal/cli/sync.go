package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitwiseai/bitwise/pkg/memory"
)

var (
	compactDays     int
	compactStrategy string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reindex memory files",
	Long:  `Reindex all memory markdown files and reconcile deletions.`,
	RunE:  runSync,
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact expired short-term memory",
	Long:  `Apply the configured retention strategy to daily files past the retention window.`,
	RunE:  runCompact,
}

func init() {
	compactCmd.Flags().IntVar(&compactDays, "days", 0, "retention days override (default from config)")
	compactCmd.Flags().StringVar(&compactStrategy, "strategy", "", "strategy override: summarize, archive, delete")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(compactCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	result, err := mgr.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Synced %d files (%d chunks), removed %d\n",
		result.FilesSynced, result.ChunksIndexed, result.FilesRemoved)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}

func runCompact(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	result, err := mgr.CompactShortTerm(memory.CompactOptions{
		RetentionDays: compactDays,
		Strategy:      compactStrategy,
	})
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}

	fmt.Printf("Compacted %d files (%d summarized, %d archived)\n",
		result.FilesCompacted, result.SummariesGenerated, result.FilesArchived)
	return nil
}
