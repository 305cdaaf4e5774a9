package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitwiseai/bitwise/pkg/memory"
)

var (
	searchLimit  int
	searchSource string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory",
	Long:  `Run a hybrid keyword + semantic search over indexed memory.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to one source (memory, sessions, skills, docs)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, lg, err := openManager(ctx)
	if err != nil {
		return err
	}
	defer lg.Close()
	defer mgr.Close()

	opts := memory.SearchOptions{MaxResults: searchLimit}
	if searchSource != "" {
		opts.SourceFilter = []memory.Source{memory.Source(searchSource)}
	}

	results, err := mgr.Search(ctx, strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s, lines %d-%d)\n", i+1, r.Score, r.Path, r.Source, r.StartLine, r.EndLine)
		fmt.Printf("   %s\n", r.Snippet)
	}
	return nil
}
