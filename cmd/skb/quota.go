package main

import (
	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's analysis quota usage",
	Long: `Print the daily analysis quota: the configured limit, how many runs
count against it today, and how many remain. Failed, timed-out and
cancelled runs do not count.`,
	Run: runQuota,
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	status, err := e.svc.QuotaStatus()
	if err != nil {
		fatalf("quota lookup failed: %v", err)
	}
	printJSON(status)
}
