package main

import (
	"github.com/spf13/cobra"

	"skb/internal/storage"
)

var (
	cacheClearProject  string
	cacheClearSessions []string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached analyses",
	Long: `Remove cached analysis entries. Session metadata and continuation
chains are never touched; cleared sessions present as unanalyzed until
re-analyzed.

Examples:
  skb cache clear
  skb cache clear --project /home/u/work/api
  skb cache clear --session sess-1 --session sess-2`,
	Run: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearProject, "project", "", "Clear only one project's entries")
	cacheClearCmd.Flags().StringArrayVar(&cacheClearSessions, "session", nil, "Clear only specific sessions (repeatable)")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	removed, err := e.svc.ClearCache(storage.ClearScope{
		ProjectPath: cacheClearProject,
		SessionIDs:  cacheClearSessions,
	})
	if err != nil {
		fatalf("cache clear failed: %v", err)
	}

	printJSON(map[string]interface{}{
		"removed": removed,
	})
}
