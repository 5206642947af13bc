package analyzer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopscan/internal/config"
	"loopscan/internal/models"
	st "loopscan/internal/syntax/syntaxtest"
)

func reportDocument(t *testing.T) *models.ScanDocument {
	t.Helper()
	a := analyze(t, "/src/a.cpp",
		st.Func("scale", "void", params(st.Param("int", "n")), st.Block(
			countUp("i", "n", st.Expr(st.Call("apply", st.Ident("i")))),
		)),
		st.Func("main", "int", nil, st.Block(
			countUp("i", "3", countUp("j", "4", st.Expr(st.Call("scale", st.Ident("j"))))),
		)),
	)
	b := analyze(t, "/src/b.c",
		st.Func("apply", "void", params(st.Param("int", "x")), st.Block(
			st.While(st.Bin(">", st.Ident("x"), st.Lit("0")), st.Block(st.Expr(st.Dec(st.Ident("x"))))),
		)),
	)
	b.FileInfo.Language = "C"
	doc := documentOf(a, b)
	doc.Metadata.AnalysisDurationSeconds = 1.5
	return doc
}

func plainConfig(format string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.Format = format
	cfg.Output.Colors = false
	return cfg
}

func TestComputeStatistics(t *testing.T) {
	s := ComputeStatistics(reportDocument(t), 10)

	assert.Equal(t, 4, s.TotalLoops)
	assert.Equal(t, 2, s.FilesScanned)
	assert.Equal(t, 2, s.FilesWithLoops)
	assert.Equal(t, 3, s.MaxLoopsPerFile)
	assert.Equal(t, 2.0, s.AvgLoopsPerFile)
	assert.Equal(t, []Ranked{{Name: "/src/a.cpp", Count: 3}, {Name: "/src/b.c", Count: 1}}, s.TopFiles)
	assert.Equal(t, []Ranked{{Name: "C", Count: 1}, {Name: "C++", Count: 1}}, s.Languages)

	// main -> scale -> apply, all from inside loops.
	assert.Equal(t, 3, s.GraphFunctions)
	assert.Equal(t, 2, s.GraphEdges)
	assert.Equal(t, 2, s.LoopCallEdges)
	assert.Equal(t, []Ranked{{Name: "main", Count: 1}, {Name: "scale", Count: 1}}, s.TopLoopCallers)

	top := ComputeStatistics(reportDocument(t), 1)
	assert.Len(t, top.TopFiles, 1)
	assert.Len(t, top.MostCalled, 1)
}

func TestGenerateConsoleReport(t *testing.T) {
	out := NewReportGeneratorWithConfig(plainConfig("console")).Generate(reportDocument(t))

	assert.Contains(t, out, "Loop Analysis Report")
	assert.Contains(t, out, "Loops found: 4")
	assert.Contains(t, out, "Functions with loops: 3")
	assert.Contains(t, out, "Nesting depth: max 2")
	assert.Contains(t, out, "/src/a.cpp")
	assert.Contains(t, out, "Analysis completed in 1.50s")
	assert.NotContains(t, out, "\x1b[")
}

func TestGenerateMarkdownReport(t *testing.T) {
	doc := reportDocument(t)
	doc.Metadata.Interrupted = true
	out := NewReportGeneratorWithConfig(plainConfig("markdown")).Generate(doc)

	assert.True(t, strings.HasPrefix(out, "# Loop Analysis Report"))
	assert.Contains(t, out, "results are partial")
	assert.Contains(t, out, "| Loops found | 4 |")
	assert.Contains(t, out, "| for | 3 | 75.0% |")
	assert.Contains(t, out, "| while | 1 | 25.0% |")
	assert.Contains(t, out, "## Most Called Functions")
}

func TestReportTitleNamesProject(t *testing.T) {
	cfg := plainConfig("console")
	cfg.ProjectName = "engine"
	assert.True(t, strings.HasPrefix(NewReportGeneratorWithConfig(cfg).Generate(reportDocument(t)), "Loop Analysis Report: engine\n"))

	cfg.Output.Format = "markdown"
	assert.True(t, strings.HasPrefix(NewReportGeneratorWithConfig(cfg).Generate(reportDocument(t)), "# Loop Analysis Report: engine\n"))
}

func TestGenerateJSONReport(t *testing.T) {
	doc := reportDocument(t)
	out := NewReportGenerator("json").Generate(doc)

	var decoded models.ScanDocument
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, doc.AnalysisSummary, decoded.AnalysisSummary)
	assert.Len(t, decoded.SourceFiles, 2)
	require.NoError(t, ValidateDocument(&decoded))
}

func TestExtractBounds(t *testing.T) {
	export := ExtractBounds(reportDocument(t))
	require.Len(t, export.Loops, 4)

	first := export.Loops[0]
	assert.Equal(t, "/src/a.cpp", first.File)
	assert.Equal(t, "main", first.Function)
	assert.Equal(t, "for", first.Type)
	assert.Equal(t, 1, first.NestingLevel)
	assert.Equal(t, "constant", first.EstimatedIterations)
	assert.Equal(t, "3", first.IterationFormula)
	assert.Equal(t, "i", first.InductionVariable)
	assert.Equal(t, 2, export.Loops[1].NestingLevel)

	last := export.Loops[3]
	assert.Equal(t, "/src/b.c", last.File)
	assert.Equal(t, "while", last.Type)
	assert.Empty(t, last.Increment)

	p := export.Patterns
	assert.Equal(t, 3, p.ComparisonOperators["<"])
	assert.Equal(t, 1, p.ComparisonOperators[">"])
	assert.Equal(t, 3, p.IncrementKinds["increment"])
	assert.Equal(t, 2, p.InductionVariables["i"])
	assert.Equal(t, 2, p.Estimates["constant"])
}

func TestIncrementKind(t *testing.T) {
	tests := map[string]string{
		"":            "none",
		"++i":         "increment",
		"i--":         "decrement",
		"i += 4":      "compound_addition",
		"i -= 1":      "compound_subtraction",
		"i *= 2":      "multiplicative",
		"i = next(i)": "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, incrementKind(in), in)
	}
}

func TestWriteBoundsCSV(t *testing.T) {
	export := ExtractBounds(reportDocument(t))
	var buf bytes.Buffer
	require.NoError(t, WriteBoundsCSV(&buf, export.Loops))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, boundsHeader, records[0])
	assert.Equal(t, "/src/a.cpp", records[1][0])
	assert.Equal(t, "i < 3", records[1][7])
}
