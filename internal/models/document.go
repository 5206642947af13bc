package models

import (
	"sort"
	"time"
)

const (
	SchemaVersion = "1.0.0"
	ToolVersion   = "1.0.0"
)

type FailedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type Metadata struct {
	Version                 string       `json:"version"`
	ToolVersion             string       `json:"tool_version"`
	RunID                   string       `json:"run_id"`
	GeneratedAt             time.Time    `json:"generated_at"`
	StartedAt               time.Time    `json:"started_at"`
	ScanPath                string       `json:"scan_path"`
	CompilerFlags           []string     `json:"compiler_flags"`
	TotalFilesScanned       int          `json:"total_files_scanned"`
	TotalLoopsFound         int          `json:"total_loops_found"`
	AnalysisDurationSeconds float64      `json:"analysis_duration_seconds"`
	FailedFiles             []FailedFile `json:"failed_files"`
	Interrupted             bool         `json:"interrupted"`
	FilesProcessed          int          `json:"files_processed"`
	FilesRemaining          int          `json:"files_remaining"`
	ResumedFrom             string       `json:"resumed_from,omitempty"`
}

type LoopTypeCounts struct {
	ForLoops      int `json:"for_loops"`
	WhileLoops    int `json:"while_loops"`
	DoWhileLoops  int `json:"do_while_loops"`
	RangeForLoops int `json:"range_for_loops"`
}

type NestingStats struct {
	MaxDepth     int     `json:"max_depth"`
	AverageDepth float64 `json:"average_depth"`
}

type AnalysisSummary struct {
	TotalLoops         int            `json:"total_loops"`
	LoopTypes          LoopTypeCounts `json:"loop_types"`
	NestingLevels      NestingStats   `json:"nesting_levels"`
	FunctionsWithLoops int            `json:"functions_with_loops"`
}

type FileInfo struct {
	Path         string    `json:"path"`
	Language     string    `json:"language"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Includes     []string  `json:"includes"`
	TotalLoops   int       `json:"total_loops"`
}

type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CallSite is one raw outgoing call as seen while walking a function body.
// Candidates are the qualified names tried, in order, when resolving it.
type CallSite struct {
	Callee     string       `json:"callee"`
	Spelling   string       `json:"spelling"`
	Candidates []string     `json:"candidates"`
	Location   CallLocation `json:"location"`
	LoopID     *string      `json:"loop_id"`
}

type FunctionRecord struct {
	Name          string      `json:"name"`
	QualifiedName string      `json:"qualified_name"`
	Location      Location    `json:"location"`
	Parameters    []Parameter `json:"parameters"`
	ReturnType    string      `json:"return_type"`
	Loops         []*Loop     `json:"loops"`
	CallSites     []CallSite  `json:"call_sites"`
}

type ClassRecord struct {
	Name          string                     `json:"name"`
	QualifiedName string                     `json:"qualified_name"`
	Location      Location                   `json:"location"`
	Fields        []FieldInfo                `json:"fields"`
	Methods       map[string]*FunctionRecord `json:"methods"`
	// OutOfLine marks a class known only through method definitions such as
	// "void Matrix::print() {...}" in a file that does not define the class.
	OutOfLine bool `json:"out_of_line"`
}

type FileRecord struct {
	FileInfo  FileInfo                   `json:"file_info"`
	Classes   map[string]*ClassRecord    `json:"classes"`
	Functions map[string]*FunctionRecord `json:"functions"`
}

type CallGraphEntry struct {
	Calls          []string `json:"calls"`
	CalledBy       []string `json:"called_by"`
	CallsInLoops   []string `json:"calls_in_loops"`
	DefinitionFile *string  `json:"definition_file"`
}

type ScanDocument struct {
	Metadata        Metadata                   `json:"metadata"`
	AnalysisSummary AnalysisSummary            `json:"analysis_summary"`
	SourceFiles     map[string]*FileRecord     `json:"source_files"`
	CallGraph       map[string]*CallGraphEntry `json:"call_graph"`
	Extensions      map[string]any             `json:"extensions"`
}

func NewScanDocument() *ScanDocument {
	return &ScanDocument{
		Metadata: Metadata{
			Version:       SchemaVersion,
			ToolVersion:   ToolVersion,
			CompilerFlags: make([]string, 0),
			FailedFiles:   make([]FailedFile, 0),
		},
		SourceFiles: make(map[string]*FileRecord),
		CallGraph:   make(map[string]*CallGraphEntry),
		Extensions: map[string]any{
			"future_analysis": map[string]any{
				"placeholder": "Reserved for future analysis extensions",
			},
		},
	}
}

func NewFileRecord(info FileInfo) *FileRecord {
	if info.Includes == nil {
		info.Includes = make([]string, 0)
	}
	return &FileRecord{
		FileInfo:  info,
		Classes:   make(map[string]*ClassRecord),
		Functions: make(map[string]*FunctionRecord),
	}
}

func NewFunctionRecord(name, qualified string, loc Location) *FunctionRecord {
	return &FunctionRecord{
		Name:          name,
		QualifiedName: qualified,
		Location:      loc,
		Parameters:    make([]Parameter, 0),
		Loops:         make([]*Loop, 0),
		CallSites:     make([]CallSite, 0),
	}
}

func NewClassRecord(name, qualified string, loc Location) *ClassRecord {
	return &ClassRecord{
		Name:          name,
		QualifiedName: qualified,
		Location:      loc,
		Fields:        make([]FieldInfo, 0),
		Methods:       make(map[string]*FunctionRecord),
	}
}

// FunctionRef addresses one function or method inside a FileRecord.
type FunctionRef struct {
	Key      string
	Class    string
	Function *FunctionRecord
}

// AllFunctions lists free functions then methods, each group in key order.
func (f *FileRecord) AllFunctions() []FunctionRef {
	var out []FunctionRef
	for _, key := range SortedKeys(f.Functions) {
		out = append(out, FunctionRef{Key: key, Function: f.Functions[key]})
	}
	for _, className := range SortedKeys(f.Classes) {
		class := f.Classes[className]
		for _, key := range SortedKeys(class.Methods) {
			out = append(out, FunctionRef{Key: key, Class: className, Function: class.Methods[key]})
		}
	}
	return out
}

// CountLoops counts every loop in the file, nested ones included.
func (f *FileRecord) CountLoops() int {
	n := 0
	for _, ref := range f.AllFunctions() {
		n += CountLoops(ref.Function.Loops)
	}
	return n
}

// CountLoops counts every loop in the document, nested ones included.
func (d *ScanDocument) CountLoops() int {
	n := 0
	for _, f := range d.SourceFiles {
		n += f.CountLoops()
	}
	return n
}

// SortedFiles returns source file paths in lexicographic order.
func (d *ScanDocument) SortedFiles() []string {
	return SortedKeys(d.SourceFiles)
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
