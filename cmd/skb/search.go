package main

import (
	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchOffset int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over sessions",
	Long: `Search session names and cached analysis text. Results are ranked
by relevance, ties broken by most recent activity. Operator characters
in the query are treated as literal input.

Examples:
  skb search "login bug"
  skb search migration --limit 10`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Result offset for paging")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	views, err := e.svc.Search(args[0], searchLimit, searchOffset)
	if err != nil {
		fatalf("search failed: %v", err)
	}

	printJSON(map[string]interface{}{
		"query":   args[0],
		"count":   len(views),
		"results": views,
	})
}
