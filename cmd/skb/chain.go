package main

import (
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain <session-id>",
	Short: "Show the continuation chain containing a session",
	Long: `Print the continuation chain the session belongs to, from the root
session to the newest continuation. A session without continuations is
a single-node chain.`,
	Args: cobra.ExactArgs(1),
	Run:  runChain,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func runChain(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	chain, err := e.svc.GetContinuationChain(args[0])
	if err != nil {
		fatalf("chain lookup failed: %v", err)
	}

	printJSON(map[string]interface{}{
		"length": len(chain),
		"chain":  chain,
	})
}
