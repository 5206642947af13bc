package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"loopscan/internal/config"
	"loopscan/internal/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// ReportGenerator handles formatting and displaying analysis results
type ReportGenerator struct {
	format string
	config *config.Config
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(format string) *ReportGenerator {
	return &ReportGenerator{
		format: format,
		config: config.DefaultConfig(),
	}
}

func NewReportGeneratorWithConfig(cfg *config.Config) *ReportGenerator {
	return &ReportGenerator{
		format: cfg.Output.Format,
		config: cfg,
	}
}

// Generate creates a formatted report from an analysis document
func (r *ReportGenerator) Generate(doc *models.ScanDocument) string {
	switch r.format {
	case "json":
		return r.generateJSON(doc)
	case "markdown":
		return r.generateMarkdown(ComputeStatistics(doc, r.topN()))
	default:
		return r.generateConsole(ComputeStatistics(doc, r.topN()))
	}
}

func (r *ReportGenerator) title() string {
	if r.config != nil && r.config.ProjectName != "" {
		return "Loop Analysis Report: " + r.config.ProjectName
	}
	return "Loop Analysis Report"
}

func (r *ReportGenerator) topN() int {
	if r.config != nil && r.config.Output.TopN > 0 {
		return r.config.Output.TopN
	}
	return 10
}

// generateJSON creates a JSON report
func (r *ReportGenerator) generateJSON(doc *models.ScanDocument) string {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error generating JSON report: %v", err)
	}
	return string(data)
}

// Ranked is one row of a top-N table.
type Ranked struct {
	Name  string
	Count int
}

// Statistics are the figures shown by the console and markdown reports.
type Statistics struct {
	RunID              string
	ScanPath           string
	Duration           float64
	Interrupted        bool
	FilesScanned       int
	FilesFailed        int
	TotalLoops         int
	FunctionsWithLoops int
	MaxDepth           int
	AverageDepth       float64
	LoopTypes          models.LoopTypeCounts
	Languages          []Ranked
	FilesWithLoops     int
	AvgLoopsPerFile    float64
	MaxLoopsPerFile    int
	GraphFunctions     int
	GraphEdges         int
	LoopCallEdges      int
	TopFiles           []Ranked
	TopLoopCallers     []Ranked
	MostCalled         []Ranked
}

func ranked(counts map[string]int, n int) []Ranked {
	rows := make([]Ranked, 0, len(counts))
	for name, count := range counts {
		if count > 0 {
			rows = append(rows, Ranked{Name: name, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Name < rows[j].Name
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// ComputeStatistics gathers report figures from a document.
func ComputeStatistics(doc *models.ScanDocument, topN int) Statistics {
	s := Statistics{
		RunID:              doc.Metadata.RunID,
		ScanPath:           doc.Metadata.ScanPath,
		Duration:           doc.Metadata.AnalysisDurationSeconds,
		Interrupted:        doc.Metadata.Interrupted,
		FilesScanned:       doc.Metadata.TotalFilesScanned,
		FilesFailed:        len(doc.Metadata.FailedFiles),
		TotalLoops:         doc.AnalysisSummary.TotalLoops,
		FunctionsWithLoops: doc.AnalysisSummary.FunctionsWithLoops,
		MaxDepth:           doc.AnalysisSummary.NestingLevels.MaxDepth,
		AverageDepth:       doc.AnalysisSummary.NestingLevels.AverageDepth,
		LoopTypes:          doc.AnalysisSummary.LoopTypes,
	}

	languages := make(map[string]int)
	perFile := make(map[string]int)
	for path, record := range doc.SourceFiles {
		languages[record.FileInfo.Language]++
		n := record.FileInfo.TotalLoops
		perFile[path] = n
		if n > 0 {
			s.FilesWithLoops++
		}
		if n > s.MaxLoopsPerFile {
			s.MaxLoopsPerFile = n
		}
	}
	s.Languages = ranked(languages, 0)
	if len(doc.SourceFiles) > 0 {
		s.AvgLoopsPerFile = float64(doc.CountLoops()) / float64(len(doc.SourceFiles))
	}
	s.TopFiles = ranked(perFile, topN)

	loopCallers := make(map[string]int)
	called := make(map[string]int)
	for name, entry := range doc.CallGraph {
		s.GraphFunctions++
		s.GraphEdges += len(entry.Calls)
		s.LoopCallEdges += len(entry.CallsInLoops)
		loopCallers[name] = len(entry.CallsInLoops)
		called[name] = len(entry.CalledBy)
	}
	s.TopLoopCallers = ranked(loopCallers, topN)
	s.MostCalled = ranked(called, topN)
	return s
}

func renderTable(header []string, rows [][]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	alignment := make([]int, len(header))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_RIGHT
	}
	alignment[0] = tablewriter.ALIGN_LEFT
	table.SetColumnAlignment(alignment)
	table.AppendBulk(rows)
	table.Render()
	return buf.String()
}

func rankedRows(rows []Ranked) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, []string{row.Name, fmt.Sprintf("%d", row.Count)})
	}
	return out
}

func loopTypeRows(t models.LoopTypeCounts, total int) [][]string {
	pct := func(n int) string {
		if total == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
	}
	return [][]string{
		{"for", fmt.Sprintf("%d", t.ForLoops), pct(t.ForLoops)},
		{"while", fmt.Sprintf("%d", t.WhileLoops), pct(t.WhileLoops)},
		{"do_while", fmt.Sprintf("%d", t.DoWhileLoops), pct(t.DoWhileLoops)},
		{"range_for", fmt.Sprintf("%d", t.RangeForLoops), pct(t.RangeForLoops)},
	}
}

// generateConsole creates a colorized console report
func (r *ReportGenerator) generateConsole(s Statistics) string {
	var report strings.Builder

	useColors := true
	verbose := false
	if r.config != nil {
		useColors = r.config.Output.Colors
		verbose = r.config.Output.Verbose
	}
	heading := func(title string) {
		if useColors {
			report.WriteString(color.WhiteString("%s\n", title))
		} else {
			report.WriteString(title + "\n")
		}
	}

	// Header
	if useColors {
		report.WriteString(color.CyanString("🔁 %s\n", r.title()))
		report.WriteString(color.WhiteString("═══════════════════════════════════════\n\n"))
	} else {
		report.WriteString(r.title() + "\n")
		report.WriteString("=======================================\n\n")
	}

	if verbose {
		report.WriteString(fmt.Sprintf("   Run: %s\n   Path: %s\n\n", s.RunID, s.ScanPath))
	}

	heading("📊 Summary:")
	report.WriteString(fmt.Sprintf("   Files scanned: %d\n", s.FilesScanned))
	if s.FilesFailed > 0 {
		failed := fmt.Sprintf("%d", s.FilesFailed)
		if useColors {
			failed = color.RedString(failed)
		}
		report.WriteString(fmt.Sprintf("   Files failed: %s\n", failed))
	}
	report.WriteString(fmt.Sprintf("   Loops found: %d\n", s.TotalLoops))
	report.WriteString(fmt.Sprintf("   Functions with loops: %d\n", s.FunctionsWithLoops))
	report.WriteString(fmt.Sprintf("   Nesting depth: max %d, average %.2f\n", s.MaxDepth, s.AverageDepth))
	report.WriteString(fmt.Sprintf("   Loops per file: average %.2f, max %d (%d files with loops)\n\n",
		s.AvgLoopsPerFile, s.MaxLoopsPerFile, s.FilesWithLoops))

	heading("🔁 Loop Types:")
	report.WriteString(renderTable([]string{"Type", "Count", "Share"}, loopTypeRows(s.LoopTypes, s.TotalLoops)))
	report.WriteString("\n")

	if len(s.Languages) > 0 {
		heading("📁 File Types:")
		report.WriteString(renderTable([]string{"Language", "Files"}, rankedRows(s.Languages)))
		report.WriteString("\n")
	}

	heading("🔗 Call Graph:")
	report.WriteString(fmt.Sprintf("   Functions: %d\n   Call edges: %d\n   Edges inside loops: %d\n\n",
		s.GraphFunctions, s.GraphEdges, s.LoopCallEdges))

	if len(s.TopFiles) > 0 {
		heading("🏆 Files With Most Loops:")
		report.WriteString(renderTable([]string{"File", "Loops"}, rankedRows(s.TopFiles)))
		report.WriteString("\n")
	}
	if len(s.TopLoopCallers) > 0 {
		heading("🔍 Functions Calling Inside Loops:")
		report.WriteString(renderTable([]string{"Function", "Callees In Loops"}, rankedRows(s.TopLoopCallers)))
		report.WriteString("\n")
	}
	if len(s.MostCalled) > 0 {
		heading("📞 Most Called Functions:")
		report.WriteString(renderTable([]string{"Function", "Callers"}, rankedRows(s.MostCalled)))
		report.WriteString("\n")
	}

	// Footer
	footer := fmt.Sprintf("Analysis completed in %.2fs\n", s.Duration)
	if s.Interrupted {
		footer = "Analysis was interrupted; results are partial\n"
		if useColors {
			report.WriteString(color.YellowString(footer))
			return report.String()
		}
	}
	if useColors {
		report.WriteString(color.WhiteString(footer))
	} else {
		report.WriteString(footer)
	}

	return report.String()
}

func markdownTable(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	b.WriteString("\n")
}

func (r *ReportGenerator) generateMarkdown(s Statistics) string {
	var b strings.Builder
	b.WriteString("# " + r.title() + "\n\n")
	if s.Interrupted {
		b.WriteString("> The scan was interrupted; results are partial.\n\n")
	}

	b.WriteString("## Summary\n\n")
	markdownTable(&b, []string{"Metric", "Value"}, [][]string{
		{"Files scanned", fmt.Sprintf("%d", s.FilesScanned)},
		{"Files failed", fmt.Sprintf("%d", s.FilesFailed)},
		{"Loops found", fmt.Sprintf("%d", s.TotalLoops)},
		{"Functions with loops", fmt.Sprintf("%d", s.FunctionsWithLoops)},
		{"Max nesting depth", fmt.Sprintf("%d", s.MaxDepth)},
		{"Average nesting depth", fmt.Sprintf("%.2f", s.AverageDepth)},
		{"Average loops per file", fmt.Sprintf("%.2f", s.AvgLoopsPerFile)},
		{"Analysis duration (s)", fmt.Sprintf("%.2f", s.Duration)},
	})

	b.WriteString("## Loop Types\n\n")
	markdownTable(&b, []string{"Type", "Count", "Share"}, loopTypeRows(s.LoopTypes, s.TotalLoops))

	if len(s.Languages) > 0 {
		b.WriteString("## File Types\n\n")
		markdownTable(&b, []string{"Language", "Files"}, rankedRows(s.Languages))
	}

	b.WriteString("## Call Graph\n\n")
	markdownTable(&b, []string{"Metric", "Value"}, [][]string{
		{"Functions", fmt.Sprintf("%d", s.GraphFunctions)},
		{"Call edges", fmt.Sprintf("%d", s.GraphEdges)},
		{"Edges inside loops", fmt.Sprintf("%d", s.LoopCallEdges)},
	})

	if len(s.TopFiles) > 0 {
		b.WriteString("## Files With Most Loops\n\n")
		markdownTable(&b, []string{"File", "Loops"}, rankedRows(s.TopFiles))
	}
	if len(s.TopLoopCallers) > 0 {
		b.WriteString("## Functions Calling Inside Loops\n\n")
		markdownTable(&b, []string{"Function", "Callees in loops"}, rankedRows(s.TopLoopCallers))
	}
	if len(s.MostCalled) > 0 {
		b.WriteString("## Most Called Functions\n\n")
		markdownTable(&b, []string{"Function", "Callers"}, rankedRows(s.MostCalled))
	}
	return b.String()
}
