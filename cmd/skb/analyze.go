package main

import (
	"github.com/spf13/cobra"

	skberrors "skb/internal/errors"
)

var analyzeWait bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <session-id> [session-id...]",
	Short: "Request analysis for one or more sessions",
	Long: `Submit sessions for analysis. Runs count against the daily quota;
sessions with a valid cached analysis are skipped without consuming it.
Multiple sessions are submitted as one batch.

Examples:
  skb analyze 1a2b3c4d-...
  skb analyze --wait sess-1 sess-2 sess-3`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeWait, "wait", false, "Wait for submitted runs to finish")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	if len(args) == 1 {
		outcome, err := e.svc.RequestAnalysis(args[0])
		if err != nil && !skberrors.HasCode(err, skberrors.QuotaExceeded) {
			fatalf("analysis request failed: %v", err)
		}
		if analyzeWait {
			e.controller.Wait()
		}
		printJSON(outcome)
		return
	}

	report, err := e.svc.RequestBatchAnalysis(args)
	if err != nil {
		fatalf("batch submission failed: %v", err)
	}

	if analyzeWait {
		e.controller.Wait()
		progress, err := e.svc.BatchProgress(report.BatchID)
		if err != nil {
			fatalf("failed to read batch progress: %v", err)
		}
		printJSON(progress)
		return
	}
	printJSON(report)
}
