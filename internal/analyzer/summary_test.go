package analyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopscan/internal/models"
	st "loopscan/internal/syntax/syntaxtest"
)

func nestedFile(t *testing.T, path string) *models.FileRecord {
	return analyze(t, path,
		st.Func("main", "int", nil, st.Block(
			countUp("i", "3", countUp("j", "3")),
			st.While(st.Ident("running"), st.Block()),
		)),
	)
}

func rangeFile(t *testing.T, path string) *models.FileRecord {
	return analyze(t, path,
		st.Func("sum", "int", params(st.Param("const std::vector<int>&", "v")), st.Block(
			st.RangeFor("int", "x", st.Ident("v"), st.Block()),
		)),
	)
}

func TestAssemblerSummary(t *testing.T) {
	asm := NewAssembler(nil)
	asm.AddFile(nestedFile(t, "/src/a.cpp"))
	asm.AddFile(rangeFile(t, "/src/b.cpp"))

	doc := asm.Document()
	summary := asm.Summary()
	assert.Equal(t, ComputeSummary(doc), summary)
	assert.Equal(t, summary, doc.AnalysisSummary)

	assert.Equal(t, 4, summary.TotalLoops)
	assert.Equal(t, models.LoopTypeCounts{ForLoops: 2, WhileLoops: 1, RangeForLoops: 1}, summary.LoopTypes)
	assert.Equal(t, 2, summary.NestingLevels.MaxDepth)
	assert.Equal(t, 1.25, summary.NestingLevels.AverageDepth)
	assert.Equal(t, 2, summary.FunctionsWithLoops)
	assert.Equal(t, 4, doc.Metadata.TotalLoopsFound)
	assert.Equal(t, 2, doc.Metadata.TotalFilesScanned)

	asm.RemoveFile("/src/a.cpp")
	assert.Equal(t, ComputeSummary(doc), asm.Summary())
	assert.Equal(t, 1, doc.AnalysisSummary.TotalLoops)
	assert.Equal(t, 1, doc.AnalysisSummary.NestingLevels.MaxDepth)
	assert.Equal(t, 1.0, doc.AnalysisSummary.NestingLevels.AverageDepth)

	asm.RemoveFile("/src/b.cpp")
	assert.Equal(t, models.AnalysisSummary{}, asm.Summary())
}

func TestAssemblerReplacesFiles(t *testing.T) {
	asm := NewAssembler(nil)
	asm.AddFile(nestedFile(t, "/src/a.cpp"))
	asm.AddFile(nestedFile(t, "/src/a.cpp"))
	assert.Equal(t, 3, asm.Summary().TotalLoops)
	assert.Len(t, asm.Document().SourceFiles, 1)

	asm.AddFailure("/src/a.cpp", errors.New("parse failure"))
	doc := asm.Document()
	assert.Empty(t, doc.SourceFiles)
	require.Len(t, doc.Metadata.FailedFiles, 1)
	assert.Equal(t, "parse failure", doc.Metadata.FailedFiles[0].Error)
	assert.Equal(t, 1, doc.Metadata.TotalFilesScanned)
	assert.Equal(t, 0, asm.Summary().TotalLoops)

	asm.AddFile(rangeFile(t, "/src/a.cpp"))
	assert.Empty(t, doc.Metadata.FailedFiles)
	assert.Equal(t, 1, doc.Metadata.TotalFilesScanned)
}

func TestAssemblerIngestsExistingDocument(t *testing.T) {
	first := NewAssembler(nil)
	first.AddFile(nestedFile(t, "/src/a.cpp"))
	first.AddFile(rangeFile(t, "/src/b.cpp"))

	second := NewAssembler(first.Document())
	assert.Equal(t, first.Summary(), second.Summary())
}

func TestSummaryAverageIsRounded(t *testing.T) {
	rec := analyze(t, "/src/c.cpp",
		st.Func("f", "void", nil, st.Block(
			countUp("i", "3", countUp("j", "3")),
			countUp("k", "3"),
		)),
	)
	asm := NewAssembler(nil)
	asm.AddFile(rec)
	assert.Equal(t, 1.33, asm.Summary().NestingLevels.AverageDepth)
}

func TestValidateDocument(t *testing.T) {
	doc := documentOf(nestedFile(t, "/src/a.cpp"), rangeFile(t, "/src/b.cpp"))
	require.NoError(t, ValidateDocument(doc))

	t.Run("total loops", func(t *testing.T) {
		doc := documentOf(nestedFile(t, "/src/a.cpp"))
		doc.Metadata.TotalLoopsFound++
		assert.ErrorIs(t, ValidateDocument(doc), ErrInvalidDocument)
	})

	t.Run("summary", func(t *testing.T) {
		doc := documentOf(nestedFile(t, "/src/a.cpp"))
		doc.AnalysisSummary.LoopTypes.ForLoops = 7
		assert.ErrorIs(t, ValidateDocument(doc), ErrInvalidDocument)
	})

	t.Run("nesting", func(t *testing.T) {
		doc := documentOf(nestedFile(t, "/src/a.cpp"))
		loop := doc.SourceFiles["/src/a.cpp"].Functions["main"].Loops[0].NestedLoops[0]
		loop.NestingLevel = 5
		err := ValidateDocument(doc)
		require.ErrorIs(t, err, ErrInvalidDocument)
		assert.Contains(t, err.Error(), "expected 2")
	})

	t.Run("call graph symmetry", func(t *testing.T) {
		doc := documentOf(analyze(t, "/src/a.cpp",
			st.Func("a", "void", nil, st.Block(st.Expr(st.Call("b")))),
		))
		doc.CallGraph["b"].CalledBy = []string{}
		err := ValidateDocument(doc)
		require.ErrorIs(t, err, ErrInvalidDocument)
		assert.Contains(t, err.Error(), "called_by")
	})

	t.Run("missing maps", func(t *testing.T) {
		doc := models.NewScanDocument()
		doc.CallGraph = nil
		assert.ErrorIs(t, ValidateDocument(doc), ErrInvalidDocument)
		assert.ErrorIs(t, ValidateDocument(nil), ErrInvalidDocument)
	})
}
