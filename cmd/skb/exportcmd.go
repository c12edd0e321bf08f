package main

import (
	"os"

	"github.com/spf13/cobra"

	"skb/internal/export"
)

var (
	exportFormat  string
	exportZstd    bool
	exportProject string
	exportChains  bool
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a catalog snapshot",
	Long: `Write a snapshot of the catalog to stdout or a file, as JSON or
YAML, optionally zstd-compressed.

Examples:
  skb export > catalog.json
  skb export --format yaml -o catalog.yaml
  skb export --zstd -o catalog.json.zst
  skb export --project /home/u/work/api --chains`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, yaml")
	exportCmd.Flags().BoolVar(&exportZstd, "zstd", false, "Compress output with zstd")
	exportCmd.Flags().StringVar(&exportProject, "project", "", "Export only one project")
	exportCmd.Flags().BoolVar(&exportChains, "chains", false, "Include continuation chains")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			fatalf("failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	exporter := export.New(e.svc, e.db, e.logger)
	err := exporter.Export(out, export.Options{
		Format:      export.Format(exportFormat),
		Compress:    exportZstd,
		ProjectPath: exportProject,
		WithChains:  exportChains,
	})
	if err != nil {
		fatalf("export failed: %v", err)
	}
}
