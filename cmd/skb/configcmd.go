package main

import (
	"github.com/spf13/cobra"

	"skb/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage skb configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run:   runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write the default configuration to <data-dir>/config.json if none exists.`,
	Run:   runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	printJSON(map[string]interface{}{
		"dataDir": e.dataDir,
		"config":  e.cfg,
	})
}

func runConfigInit(cmd *cobra.Command, args []string) {
	dataDir := dataDirFlag
	if dataDir == "" {
		var err error
		dataDir, err = config.DataDir()
		if err != nil {
			fatalf("failed to resolve data directory: %v", err)
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(dataDir); err != nil {
		fatalf("failed to write config: %v", err)
	}

	printJSON(map[string]interface{}{
		"written": dataDir + "/config.json",
	})
}
