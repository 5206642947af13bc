package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"loopscan/internal/analyzer"
	"loopscan/internal/scan"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	reportFormatFlag   string
	reportOutputFlag   string
	reportTopFlag      int
	reportValidateFlag bool
)

var reportCmd = &cobra.Command{
	Use:   "report <analysis.json>",
	Short: "Summarize an analysis document",
	Long: `report prints statistics for a document written by a scan: loop types,
nesting, file types, loops per file, call graph figures and the top files
and functions.

Examples:
  loopscan report loop_analysis.json
  loopscan report --format markdown -o report.md loop_analysis.json
  loopscan report --validate loop_analysis.json`,
	Args: cobra.ExactArgs(1),
	Run:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormatFlag, "format", "f", "console", "Report format (console, markdown)")
	reportCmd.Flags().StringVarP(&reportOutputFlag, "output", "o", "", "Write the report to a file")
	reportCmd.Flags().IntVar(&reportTopFlag, "top", 0, "Rows in ranked tables")
	reportCmd.Flags().BoolVar(&reportValidateFlag, "validate", false, "Check the document's invariants first")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		color.Red("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if reportFormatFlag != "console" && reportFormatFlag != "markdown" {
		color.Red("Unsupported report format: %s (valid: console, markdown)\n", reportFormatFlag)
		os.Exit(1)
	}
	cfg.Output.Format = reportFormatFlag
	if reportTopFlag > 0 {
		cfg.Output.TopN = reportTopFlag
	}
	if reportOutputFlag != "" {
		cfg.Output.Colors = false
	}

	doc, err := scan.ReadDocument(args[0])
	if err != nil {
		color.Red("%v\n", err)
		os.Exit(1)
	}

	if reportValidateFlag {
		if err := analyzer.ValidateDocument(doc); err != nil {
			color.Red("❌ %v\n", err)
			os.Exit(1)
		}
		color.Green("✅ Document is valid\n")
	}

	report := analyzer.NewReportGeneratorWithConfig(cfg).Generate(doc)
	if reportOutputFlag == "" {
		fmt.Print(report)
		return
	}
	if err := writeReportToFile(report, reportOutputFlag); err != nil {
		color.Red("Failed to write report to file: %v\n", err)
		os.Exit(1)
	}
	color.Green("📄 Report saved to: %s\n", reportOutputFlag)
}

func writeReportToFile(report, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(filePath, []byte(report), 0644)
}
