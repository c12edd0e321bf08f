package main

import (
	"time"

	"github.com/spf13/cobra"

	"skb/internal/query"
)

var (
	listProject       string
	listSince         string
	listUntil         string
	listAnalyzed      bool
	listUnanalyzed    bool
	listSort          string
	listAsc           bool
	listLimit         int
	listOffset        int
	listContinuations bool
	listAnalysis      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued sessions",
	Long: `List sessions in the catalog, most recently active first.

Examples:
  skb list
  skb list --project /home/u/work/api
  skb list --since 2026-02-01 --analysis
  skb list --sort message_count --limit 10
  skb list --continuations`,
	Run: runList,
}

func init() {
	listCmd.Flags().StringVar(&listProject, "project", "", "Filter by project path")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only sessions active on or after this date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Only sessions active on or before this date (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listAnalyzed, "analyzed", false, "Only analyzed sessions")
	listCmd.Flags().BoolVar(&listUnanalyzed, "unanalyzed", false, "Only unanalyzed sessions")
	listCmd.Flags().StringVar(&listSort, "sort", "", "Sort column: last_message_at, file_mtime, message_count, project_path, created_at, name")
	listCmd.Flags().BoolVar(&listAsc, "asc", false, "Sort ascending")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of results")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Result offset for paging")
	listCmd.Flags().BoolVar(&listContinuations, "continuations", false, "Include continuation counts")
	listCmd.Flags().BoolVar(&listAnalysis, "analysis", false, "Include analysis titles and summaries")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	var filters []query.Filter
	if listProject != "" {
		filters = append(filters, query.ByProject{ProjectPath: listProject})
	}
	if listSince != "" || listUntil != "" {
		r := query.ByDateRange{}
		if listSince != "" {
			t, err := time.Parse("2006-01-02", listSince)
			if err != nil {
				fatalf("invalid --since date: %v", err)
			}
			r.From = t
		}
		if listUntil != "" {
			t, err := time.Parse("2006-01-02", listUntil)
			if err != nil {
				fatalf("invalid --until date: %v", err)
			}
			r.To = t.Add(24*time.Hour - time.Second)
		}
		filters = append(filters, r)
	}
	if listAnalyzed {
		filters = append(filters, query.ByAnalyzed{Analyzed: true})
	}
	if listUnanalyzed {
		filters = append(filters, query.ByAnalyzed{Analyzed: false})
	}

	views, err := e.svc.ListSessions(query.Options{
		IncludeContinuationCount: listContinuations,
		IncludeAnalysis:          listAnalysis,
		Sort:                     query.SortColumn(listSort),
		Ascending:                listAsc,
		Limit:                    listLimit,
		Offset:                   listOffset,
		Filters:                  filters,
	})
	if err != nil {
		fatalf("list failed: %v", err)
	}

	printJSON(map[string]interface{}{
		"count":    len(views),
		"sessions": views,
	})
}
