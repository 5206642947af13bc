package analyzer

import (
	"math"

	"loopscan/internal/models"
)

// fileStats is one file's contribution to the running summary.
type fileStats struct {
	types              models.LoopTypeCounts
	depths             map[int]int
	functionsWithLoops int
	loops              int
}

func statsOf(record *models.FileRecord) fileStats {
	s := fileStats{depths: make(map[int]int)}
	for _, ref := range record.AllFunctions() {
		if len(ref.Function.Loops) > 0 {
			s.functionsWithLoops++
		}
		models.WalkLoops(ref.Function.Loops, func(l *models.Loop) {
			s.loops++
			s.depths[l.NestingLevel]++
			switch l.Type {
			case models.LoopFor:
				s.types.ForLoops++
			case models.LoopWhile:
				s.types.WhileLoops++
			case models.LoopDoWhile:
				s.types.DoWhileLoops++
			case models.LoopRangeFor:
				s.types.RangeForLoops++
			}
		})
	}
	return s
}

// Assembler owns the ScanDocument of a run and keeps analysis_summary up to
// date as files are committed. Only integer accumulators are kept, so the
// summary does not depend on the order files arrive or leave in.
type Assembler struct {
	doc   *models.ScanDocument
	stats map[string]fileStats

	types              models.LoopTypeCounts
	depths             map[int]int
	functionsWithLoops int
	loops              int
}

func NewAssembler(doc *models.ScanDocument) *Assembler {
	if doc == nil {
		doc = models.NewScanDocument()
	}
	a := &Assembler{
		doc:    doc,
		stats:  make(map[string]fileStats),
		depths: make(map[int]int),
	}
	for path, record := range doc.SourceFiles {
		a.add(path, statsOf(record))
	}
	a.sync()
	return a
}

func (a *Assembler) Document() *models.ScanDocument {
	return a.doc
}

// AddFile commits a finished FileRecord, replacing any earlier record or
// failure for the same path.
func (a *Assembler) AddFile(record *models.FileRecord) {
	path := record.FileInfo.Path
	a.drop(path)
	a.clearFailure(path)
	a.doc.SourceFiles[path] = record
	a.add(path, statsOf(record))
	a.sync()
}

// RemoveFile forgets a file, for example one deleted while watching.
func (a *Assembler) RemoveFile(path string) {
	a.drop(path)
	a.clearFailure(path)
	a.sync()
}

// AddFailure records a file that could not be analyzed.
func (a *Assembler) AddFailure(path string, err error) {
	a.drop(path)
	a.clearFailure(path)
	a.doc.Metadata.FailedFiles = append(a.doc.Metadata.FailedFiles, models.FailedFile{Path: path, Error: err.Error()})
	a.sync()
}

func (a *Assembler) add(path string, s fileStats) {
	a.stats[path] = s
	a.types.ForLoops += s.types.ForLoops
	a.types.WhileLoops += s.types.WhileLoops
	a.types.DoWhileLoops += s.types.DoWhileLoops
	a.types.RangeForLoops += s.types.RangeForLoops
	for level, n := range s.depths {
		a.depths[level] += n
	}
	a.functionsWithLoops += s.functionsWithLoops
	a.loops += s.loops
}

func (a *Assembler) drop(path string) {
	s, ok := a.stats[path]
	if !ok {
		return
	}
	delete(a.stats, path)
	delete(a.doc.SourceFiles, path)
	a.types.ForLoops -= s.types.ForLoops
	a.types.WhileLoops -= s.types.WhileLoops
	a.types.DoWhileLoops -= s.types.DoWhileLoops
	a.types.RangeForLoops -= s.types.RangeForLoops
	for level, n := range s.depths {
		a.depths[level] -= n
		if a.depths[level] == 0 {
			delete(a.depths, level)
		}
	}
	a.functionsWithLoops -= s.functionsWithLoops
	a.loops -= s.loops
}

func (a *Assembler) clearFailure(path string) {
	failed := a.doc.Metadata.FailedFiles[:0]
	for _, f := range a.doc.Metadata.FailedFiles {
		if f.Path != path {
			failed = append(failed, f)
		}
	}
	a.doc.Metadata.FailedFiles = failed
}

// sync copies the accumulators into the document.
func (a *Assembler) sync() {
	a.doc.AnalysisSummary = a.Summary()
	a.doc.Metadata.TotalLoopsFound = a.loops
	a.doc.Metadata.TotalFilesScanned = len(a.doc.SourceFiles) + len(a.doc.Metadata.FailedFiles)
}

func (a *Assembler) Summary() models.AnalysisSummary {
	return summarize(a.types, a.depths, a.functionsWithLoops, a.loops)
}

// ComputeSummary derives analysis_summary with a full pass over the
// document.
func ComputeSummary(doc *models.ScanDocument) models.AnalysisSummary {
	var (
		types  models.LoopTypeCounts
		depths = make(map[int]int)
		fns    int
		loops  int
	)
	for _, record := range doc.SourceFiles {
		s := statsOf(record)
		types.ForLoops += s.types.ForLoops
		types.WhileLoops += s.types.WhileLoops
		types.DoWhileLoops += s.types.DoWhileLoops
		types.RangeForLoops += s.types.RangeForLoops
		for level, n := range s.depths {
			depths[level] += n
		}
		fns += s.functionsWithLoops
		loops += s.loops
	}
	return summarize(types, depths, fns, loops)
}

func summarize(types models.LoopTypeCounts, depths map[int]int, fns, loops int) models.AnalysisSummary {
	summary := models.AnalysisSummary{
		TotalLoops:         loops,
		LoopTypes:          types,
		FunctionsWithLoops: fns,
	}
	sum := 0
	for level, n := range depths {
		sum += level * n
		if n > 0 && level > summary.NestingLevels.MaxDepth {
			summary.NestingLevels.MaxDepth = level
		}
	}
	if loops > 0 {
		summary.NestingLevels.AverageDepth = math.Round(float64(sum)/float64(loops)*100) / 100
	}
	return summary
}
