package analyzer

import (
	"errors"
	"fmt"
	"slices"

	"loopscan/internal/models"
)

var ErrInvalidDocument = errors.New("invalid analysis document")

// ValidateDocument checks the structural invariants of a finished or loaded
// document: totals, summary, loop nesting and call graph symmetry. All
// problems are reported together.
func ValidateDocument(doc *models.ScanDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	var problems []error
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if doc.Metadata.Version == "" {
		report("metadata.version is missing")
	}
	if doc.SourceFiles == nil {
		report("source_files is missing")
	}
	if doc.CallGraph == nil {
		report("call_graph is missing")
	}
	if doc.Extensions == nil {
		report("extensions is missing")
	}

	if total := doc.CountLoops(); doc.Metadata.TotalLoopsFound != total {
		report("metadata.total_loops_found is %d, counted %d", doc.Metadata.TotalLoopsFound, total)
	}
	if summary := ComputeSummary(doc); summary != doc.AnalysisSummary {
		report("analysis_summary %+v does not match recomputed %+v", doc.AnalysisSummary, summary)
	}

	for _, path := range doc.SortedFiles() {
		record := doc.SourceFiles[path]
		if n := record.CountLoops(); record.FileInfo.TotalLoops != n {
			report("%s: file_info.total_loops is %d, counted %d", path, record.FileInfo.TotalLoops, n)
		}
		for _, ref := range record.AllFunctions() {
			for _, l := range ref.Function.Loops {
				checkNesting(l, 1, func(msg string) {
					report("%s: %s: %s", path, ref.Function.QualifiedName, msg)
				})
			}
		}
	}

	for _, name := range models.SortedKeys(doc.CallGraph) {
		entry := doc.CallGraph[name]
		for _, callee := range entry.Calls {
			target, ok := doc.CallGraph[callee]
			if !ok || !slices.Contains(target.CalledBy, name) {
				report("call_graph: %s calls %s but is not in its called_by", name, callee)
			}
		}
		for _, caller := range entry.CalledBy {
			source, ok := doc.CallGraph[caller]
			if !ok || !slices.Contains(source.Calls, name) {
				report("call_graph: %s lists caller %s that does not call it", name, caller)
			}
		}
		for _, callee := range entry.CallsInLoops {
			if !slices.Contains(entry.Calls, callee) {
				report("call_graph: %s has %s in calls_in_loops but not in calls", name, callee)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, errors.Join(problems...))
	}
	return nil
}

func checkNesting(l *models.Loop, want int, report func(string)) {
	if l.NestingLevel != want {
		report(fmt.Sprintf("loop %s has nesting_level %d, expected %d", l.LoopID, l.NestingLevel, want))
	}
	if l.Type == models.LoopDoWhile && l.LoopBounds.MinIterations < 1 {
		report(fmt.Sprintf("do_while loop %s has min_iterations %d", l.LoopID, l.LoopBounds.MinIterations))
	}
	for _, child := range l.NestedLoops {
		checkNesting(child, want+1, report)
	}
}
