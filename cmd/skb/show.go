package main

import (
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's catalog entry",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	view, err := e.svc.GetSession(args[0])
	if err != nil {
		fatalf("show failed: %v", err)
	}
	printJSON(view)
}
