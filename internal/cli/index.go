package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index an external document",
	Long:  `Index a document file under source=docs so searches can find it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Remove a path from the index",
	Long:  `Drop all indexed chunks for a path across every source.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	res := mgr.IndexDocument(cmd.Context(), args[0], string(content))
	if !res.Success {
		return fmt.Errorf("indexing failed: %s", res.Error)
	}
	fmt.Printf("Indexed %s (%d chunks)\n", args[0], res.ChunksIndexed)
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	mgr, lg, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	if err := mgr.RemoveIndex(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s from the index\n", args[0])
	return nil
}
