package analyzer

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopscan/internal/models"
	"loopscan/internal/syntax"
	st "loopscan/internal/syntax/syntaxtest"
)

func analyze(t *testing.T, path string, decls ...*syntax.Node) *models.FileRecord {
	t.Helper()
	record := NewAnalyzer(nil).AnalyzeFile(st.Unit(decls...), models.FileInfo{Path: path, Language: "C++"})
	require.NotNil(t, record)
	return record
}

func operand(s string) *syntax.Node {
	if _, err := strconv.Atoi(s); err == nil {
		return st.Lit(s)
	}
	return st.Ident(s)
}

// countUp builds "for (int v = 0; v < hi; v++) { body }".
func countUp(v, hi string, body ...*syntax.Node) *syntax.Node {
	return st.For(
		st.Decl("int", v, st.Lit("0")),
		st.Bin("<", st.Ident(v), operand(hi)),
		st.Inc(st.Ident(v)),
		st.Block(body...),
	)
}

func params(ps ...*syntax.Node) []*syntax.Node {
	return ps
}

func TestAnalyzeTopLevelLoops(t *testing.T) {
	rec := analyze(t, "/src/main.cpp",
		st.Include("<iostream>"),
		st.Func("main", "int", nil, st.Block(
			countUp("i", "10"),
			countUp("j", "5"),
		)),
	)

	assert.Equal(t, []string{"<iostream>"}, rec.FileInfo.Includes)
	fn := rec.Functions["main"]
	require.NotNil(t, fn)
	assert.Equal(t, "int", fn.ReturnType)
	require.Len(t, fn.Loops, 2)
	for _, l := range fn.Loops {
		assert.Equal(t, 1, l.NestingLevel)
		assert.Equal(t, models.LoopFor, l.Type)
		assert.Empty(t, l.NestedLoops)
	}
	assert.NotEqual(t, fn.Loops[0].LoopID, fn.Loops[1].LoopID)
	assert.Less(t, fn.Loops[0].Location.StartLine, fn.Loops[1].Location.StartLine)
	assert.Equal(t, 2, rec.FileInfo.TotalLoops)
}

func TestAnalyzeNestedLoops(t *testing.T) {
	rec := analyze(t, "/src/nested.cpp",
		st.Func("fill", "void", params(st.Param("int**", "a"), st.Param("int", "n"), st.Param("int", "m")), st.Block(
			countUp("i", "n",
				countUp("j", "m",
					st.Expr(st.Assign("=", st.Ident("temp"), st.Index(st.Ident("a"), st.Ident("i"), st.Ident("j")))),
				),
			),
		)),
	)

	fn := rec.Functions["fill"]
	require.Len(t, fn.Loops, 1)
	outer := fn.Loops[0]
	assert.Equal(t, 1, outer.NestingLevel)
	assert.Empty(t, outer.MemoryAccess.Reads)
	assert.Empty(t, outer.Operations.Assignment)

	require.Len(t, outer.NestedLoops, 1)
	inner := outer.NestedLoops[0]
	assert.Equal(t, 2, inner.NestingLevel)
	require.Len(t, inner.Operations.Assignment, 1)
	assert.Equal(t, "temp", inner.Operations.Assignment[0].Target)

	require.Len(t, inner.MemoryAccess.Reads, 1)
	read := inner.MemoryAccess.Reads[0]
	assert.Equal(t, "a", read.Variable)
	assert.Equal(t, models.AccessType("2d_array"), read.AccessType)
	assert.Equal(t, models.StrideRowMajor, read.StridePattern)
	assert.Equal(t, []string{"i", "j"}, read.Dependencies)

	assert.Equal(t, 2, rec.FileInfo.TotalLoops)
}

func TestAnalyzeMatrixMultiply(t *testing.T) {
	rec := analyze(t, "/src/matrix.cpp",
		st.Func("multiply", "void", params(st.Param("int", "n")), st.Block(
			countUp("i", "n",
				countUp("j", "n",
					countUp("k", "n",
						st.Expr(st.Assign("+=",
							st.Index(st.Ident("C"), st.Ident("i"), st.Ident("j")),
							st.Bin("*",
								st.Index(st.Ident("A"), st.Ident("i"), st.Ident("k")),
								st.Index(st.Ident("B"), st.Ident("k"), st.Ident("j"))))),
					),
				),
			),
		)),
	)

	fn := rec.Functions["multiply"]
	require.Len(t, fn.Loops, 1)
	k := fn.Loops[0].NestedLoops[0].NestedLoops[0]
	assert.Equal(t, 3, k.NestingLevel)
	require.Len(t, k.MemoryAccess.Writes, 1)
	assert.Equal(t, "C", k.MemoryAccess.Writes[0].Variable)
	assert.Equal(t, models.AccessType("2d_array"), k.MemoryAccess.Writes[0].AccessType)
	assert.Equal(t, models.StrideRowMajor, k.MemoryAccess.Writes[0].StridePattern)

	require.Len(t, k.Operations.Arithmetic, 1)
	assert.Equal(t, "multiply", k.Operations.Arithmetic[0].Type)
	assert.Equal(t, 3, rec.FileInfo.TotalLoops)
}

func TestAnalyzeClassesAndNamespaces(t *testing.T) {
	rec := analyze(t, "/src/linalg.cpp",
		st.Namespace("linalg",
			st.Class("Matrix",
				st.Field("int", "rows"),
				st.Func("scale", "void", params(st.Param("double", "k")), st.Block(
					countUp("r", "rows", st.Expr(st.Call("helper", st.Ident("r")))),
				)),
			),
			st.Func("helper", "void", params(st.Param("int", "r")), st.Block()),
		),
		st.Func("Matrix::print", "void", nil, st.Block()),
	)

	class := rec.Classes["linalg::Matrix"]
	require.NotNil(t, class)
	assert.Equal(t, "Matrix", class.Name)
	assert.False(t, class.OutOfLine)
	assert.Equal(t, []models.FieldInfo{{Name: "rows", Type: "int"}}, class.Fields)

	scale := class.Methods["scale"]
	require.NotNil(t, scale)
	assert.Equal(t, "linalg::Matrix::scale", scale.QualifiedName)
	assert.Equal(t, []models.Parameter{{Name: "k", Type: "double"}}, scale.Parameters)

	require.Len(t, scale.CallSites, 1)
	site := scale.CallSites[0]
	assert.Equal(t, "helper", site.Callee)
	assert.Equal(t, []string{"linalg::Matrix::helper", "linalg::helper", "helper"}, site.Candidates)
	require.NotNil(t, site.LoopID)
	assert.Equal(t, scale.Loops[0].LoopID, *site.LoopID)

	bounds := scale.Loops[0].LoopBounds
	assert.Equal(t, models.EstimateExpression, bounds.EstimatedIterations)
	require.NotNil(t, bounds.IterationFormula)
	assert.Equal(t, "rows", *bounds.IterationFormula)

	require.Contains(t, rec.Functions, "linalg::helper")

	outOfLine := rec.Classes["Matrix"]
	require.NotNil(t, outOfLine)
	assert.True(t, outOfLine.OutOfLine)
	require.Contains(t, outOfLine.Methods, "print")
	assert.Equal(t, "Matrix::print", outOfLine.Methods["print"].QualifiedName)
}

func TestAnalyzeMemberCallTargets(t *testing.T) {
	rec := analyze(t, "/src/calls.cpp",
		st.Func("render", "void", params(st.Param("const Matrix&", "m"), st.Param("std::unique_ptr<Shape>", "s")), st.Block(
			st.Expr(st.Call("m.print")),
			st.Expr(st.Call("s->draw")),
			st.Expr(st.Call("unknown.run")),
		)),
	)

	sites := rec.Functions["render"].CallSites
	require.Len(t, sites, 3)
	assert.Equal(t, []string{"Matrix::print"}, sites[0].Candidates)
	assert.Equal(t, "Matrix::print", sites[0].Spelling)
	assert.Equal(t, []string{"Shape::draw"}, sites[1].Candidates)
	assert.Empty(t, sites[2].Candidates)
	assert.Equal(t, "unknown.run", sites[2].Spelling)
	for _, s := range sites {
		assert.Nil(t, s.LoopID)
	}
}

func TestAnalyzeOverloadsKeptApart(t *testing.T) {
	rec := analyze(t, "/src/overload.cpp",
		st.Func("f", "void", params(st.Param("int", "x")), st.Block(countUp("i", "x"))),
		st.Func("f", "void", params(st.Param("double", "x")), st.Block(countUp("i", "3"))),
	)
	assert.Len(t, rec.Functions, 2)
	assert.Equal(t, 2, rec.FileInfo.TotalLoops)
}

func TestNormalizeType(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Matrix", "Matrix"},
		{"const Matrix&", "Matrix"},
		{"Matrix *", "Matrix"},
		{"struct Node*", "Node"},
		{"std::shared_ptr<Widget>", "Widget"},
		{"const std::unique_ptr<A>&", "A"},
		{"auto", ""},
		{"const linalg::Matrix * const", "linalg::Matrix"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeType(tt.in), tt.in)
	}
}

func TestDetectorNames(t *testing.T) {
	a := NewAnalyzer(nil)
	assert.Equal(t, 2, a.GetDetectorCount())
	assert.Equal(t, []string{"Operation Classifier", "Memory Access Analyzer"}, a.GetDetectorNames())
}

func TestAnalyzeSequentialForAndWhile(t *testing.T) {
	rec := analyze(t, "/src/seq.cpp",
		st.Func("main", "int", nil, st.Block(
			st.Decl("int", "sum", st.Lit("0")),
			st.Decl("int", "j", st.Lit("0")),
			countUp("i", "10", st.Expr(st.Assign("+=", st.Ident("sum"), st.Ident("i")))),
			st.While(st.Bin("<", st.Ident("j"), st.Lit("5")), st.Block(
				st.Expr(st.Assign("+=", st.Ident("sum"), st.Bin("*", st.Ident("j"), st.Lit("2")))),
				st.Expr(st.Inc(st.Ident("j"))),
			)),
		)),
	)

	loops := rec.Functions["main"].Loops
	require.Len(t, loops, 2)
	assert.Equal(t, models.LoopFor, loops[0].Type)
	assert.Equal(t, models.LoopWhile, loops[1].Type)
	for _, l := range loops {
		assert.Equal(t, 1, l.NestingLevel)
		assert.Empty(t, l.NestedLoops)
		require.Len(t, l.Operations.Assignment, 1)
		assert.Equal(t, "sum", l.Operations.Assignment[0].Target)
	}
	assert.Equal(t, models.EstimateConstant, loops[1].LoopBounds.EstimatedIterations)
}

func TestAnalyzeInnerDeclarationStaysInner(t *testing.T) {
	rec := analyze(t, "/src/temp.cpp",
		st.Func("main", "int", nil, st.Block(
			countUp("i", "3",
				countUp("j", "3",
					st.Decl("int", "temp", st.Bin("*", st.Ident("i"), st.Ident("j"))),
				),
			),
		)),
	)

	loops := rec.Functions["main"].Loops
	require.Len(t, loops, 1)
	outer := loops[0]
	assert.Empty(t, outer.Operations.Assignment)
	assert.Empty(t, outer.Operations.Arithmetic)
	require.Len(t, outer.NestedLoops, 1)

	inner := outer.NestedLoops[0]
	assert.Equal(t, 2, inner.NestingLevel)
	require.Len(t, inner.Operations.Assignment, 1)
	assert.Equal(t, "temp", inner.Operations.Assignment[0].Target)
	require.Len(t, inner.Operations.Arithmetic, 1)
	assert.Equal(t, "multiply", inner.Operations.Arithmetic[0].Type)
}
