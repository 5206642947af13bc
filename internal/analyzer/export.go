package analyzer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"loopscan/internal/models"
)

// BoundsRow is one loop flattened for the bounds export.
type BoundsRow struct {
	File                string `json:"file"`
	Function            string `json:"function"`
	LoopID              string `json:"loop_id"`
	Type                string `json:"type"`
	Line                int    `json:"line"`
	NestingLevel        int    `json:"nesting_level"`
	Initialization      string `json:"initialization"`
	Condition           string `json:"condition"`
	Increment           string `json:"increment"`
	EstimatedIterations string `json:"estimated_iterations"`
	IterationFormula    string `json:"iteration_formula"`
	InductionVariable   string `json:"induction_variable"`
}

// BoundsPatterns counts recurring shapes across loop headers.
type BoundsPatterns struct {
	ComparisonOperators map[string]int `json:"comparison_operators"`
	IncrementKinds      map[string]int `json:"increment_kinds"`
	InductionVariables  map[string]int `json:"induction_variables"`
	Estimates           map[string]int `json:"estimates"`
}

type BoundsExport struct {
	Loops    []BoundsRow    `json:"loops"`
	Patterns BoundsPatterns `json:"patterns"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ExtractBounds flattens every loop of the document, in file, function and
// source order.
func ExtractBounds(doc *models.ScanDocument) BoundsExport {
	out := BoundsExport{
		Loops: make([]BoundsRow, 0),
		Patterns: BoundsPatterns{
			ComparisonOperators: make(map[string]int),
			IncrementKinds:      make(map[string]int),
			InductionVariables:  make(map[string]int),
			Estimates:           make(map[string]int),
		},
	}
	for _, path := range doc.SortedFiles() {
		for _, ref := range doc.SourceFiles[path].AllFunctions() {
			models.WalkLoops(ref.Function.Loops, func(l *models.Loop) {
				b := l.LoopBounds
				row := BoundsRow{
					File:                path,
					Function:            ref.Function.QualifiedName,
					LoopID:              l.LoopID,
					Type:                string(l.Type),
					Line:                l.Location.StartLine,
					NestingLevel:        l.NestingLevel,
					Initialization:      deref(b.Initialization),
					Condition:           deref(b.Condition),
					Increment:           deref(b.Increment),
					EstimatedIterations: string(b.EstimatedIterations),
					IterationFormula:    deref(b.IterationFormula),
					InductionVariable:   deref(b.InductionVariable),
				}
				out.Loops = append(out.Loops, row)
				out.Patterns.add(row)
			})
		}
	}
	return out
}

func (p *BoundsPatterns) add(row BoundsRow) {
	p.Estimates[row.EstimatedIterations]++
	if row.InductionVariable != "" {
		p.InductionVariables[row.InductionVariable]++
	}
	if row.Condition != "" {
		for _, op := range []string{"<=", ">=", "!=", "==", "<", ">"} {
			if strings.Contains(row.Condition, op) {
				p.ComparisonOperators[op]++
				break
			}
		}
	}
	if row.Type == string(models.LoopFor) {
		p.IncrementKinds[incrementKind(row.Increment)]++
	}
}

func incrementKind(inc string) string {
	switch {
	case inc == "":
		return "none"
	case strings.Contains(inc, "++"):
		return "increment"
	case strings.Contains(inc, "--"):
		return "decrement"
	case strings.Contains(inc, "+="):
		return "compound_addition"
	case strings.Contains(inc, "-="):
		return "compound_subtraction"
	case strings.Contains(inc, "*=") || strings.Contains(inc, "/=") ||
		strings.Contains(inc, "<<=") || strings.Contains(inc, ">>="):
		return "multiplicative"
	}
	return "other"
}

var boundsHeader = []string{
	"file", "function", "loop_id", "type", "line", "nesting_level",
	"initialization", "condition", "increment",
	"estimated_iterations", "iteration_formula", "induction_variable",
}

// WriteBoundsCSV writes the flattened rows with a header line.
func WriteBoundsCSV(w io.Writer, rows []BoundsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(boundsHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.File, r.Function, r.LoopID, r.Type,
			strconv.Itoa(r.Line), strconv.Itoa(r.NestingLevel),
			r.Initialization, r.Condition, r.Increment,
			r.EstimatedIterations, r.IterationFormula, r.InductionVariable,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
