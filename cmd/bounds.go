package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"loopscan/internal/analyzer"
	"loopscan/internal/scan"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	boundsFormatFlag string
	boundsOutputFlag string
)

var boundsCmd = &cobra.Command{
	Use:   "bounds <analysis.json>",
	Short: "Export the bounds of every loop",
	Long: `bounds flattens every loop of an analysis document into one row with its
header texts, iteration estimate and induction variable. The json format
also carries counts of comparison operators, increment kinds and
induction variable names.

Examples:
  loopscan bounds loop_analysis.json > bounds.csv
  loopscan bounds --format json -o bounds.json loop_analysis.json`,
	Args: cobra.ExactArgs(1),
	Run:  runBounds,
}

func init() {
	boundsCmd.Flags().StringVarP(&boundsFormatFlag, "format", "f", "csv", "Export format (csv, json)")
	boundsCmd.Flags().StringVarP(&boundsOutputFlag, "output", "o", "", "Write the export to a file")
	rootCmd.AddCommand(boundsCmd)
}

func runBounds(cmd *cobra.Command, args []string) {
	if _, err := loadConfig(cmd); err != nil {
		color.Red("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	doc, err := scan.ReadDocument(args[0])
	if err != nil {
		color.Red("%v\n", err)
		os.Exit(1)
	}
	export := analyzer.ExtractBounds(doc)

	var buf bytes.Buffer
	switch boundsFormatFlag {
	case "csv":
		err = analyzer.WriteBoundsCSV(&buf, export.Loops)
	case "json":
		var data []byte
		data, err = json.MarshalIndent(export, "", "  ")
		buf.Write(data)
		buf.WriteString("\n")
	default:
		err = fmt.Errorf("unsupported export format: %s (valid: csv, json)", boundsFormatFlag)
	}
	if err != nil {
		color.Red("%v\n", err)
		os.Exit(1)
	}

	if boundsOutputFlag == "" {
		fmt.Print(buf.String())
		return
	}
	if err := writeReportToFile(buf.String(), boundsOutputFlag); err != nil {
		color.Red("Failed to write export: %v\n", err)
		os.Exit(1)
	}
	color.Green("📄 Exported %d loops to: %s\n", len(export.Loops), boundsOutputFlag)
}
