package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory engine status",
	Long:  `Show index counts, vector availability and the last sync time.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	status := mgr.Status()
	stats := mgr.Stats()

	fmt.Printf("Files:        %d\n", status.Files)
	fmt.Printf("Chunks:       %d\n", status.Chunks)
	fmt.Printf("Vector index: %s\n", enabled(status.VectorEnabled))
	fmt.Printf("Text index:   %s\n", enabled(status.FTSEnabled))
	fmt.Printf("Watching:     %s\n", enabled(status.Watching))
	fmt.Printf("Cache:        %d entries\n", stats.CacheEntries)
	fmt.Printf("DB size:      %d bytes\n", stats.DBSizeBytes)
	if status.LastSync != nil {
		fmt.Printf("Last sync:    %s\n", status.LastSync.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Last sync:    never\n")
	}
	return nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
