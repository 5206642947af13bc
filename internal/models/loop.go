package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

type LoopType string

const (
	LoopFor      LoopType = "for"
	LoopWhile    LoopType = "while"
	LoopDoWhile  LoopType = "do_while"
	LoopRangeFor LoopType = "range_for"
)

// IterationEstimate classifies how well a loop's trip count is known.
type IterationEstimate string

const (
	EstimateConstant   IterationEstimate = "constant"
	EstimateExpression IterationEstimate = "expression"
	EstimateDynamic    IterationEstimate = "dynamic"
	EstimateUnknown    IterationEstimate = "unknown"
)

type AccessType string

const (
	Access1DArray      AccessType = "1d_array"
	AccessPointer      AccessType = "pointer"
	AccessStructMember AccessType = "struct_member"
)

// ArrayAccess returns the access type for a subscript chain of the given depth.
func ArrayAccess(depth int) AccessType {
	if depth <= 1 {
		return Access1DArray
	}
	return AccessType(fmt.Sprintf("%dd_array", depth))
}

type StridePattern string

const (
	StrideSequential  StridePattern = "sequential"
	StrideRowMajor    StridePattern = "row_major"
	StrideColumnMajor StridePattern = "column_major"
	StrideStrided     StridePattern = "strided"
	StrideRandom      StridePattern = "random"
)

type Location struct {
	StartLine   int `json:"start_line"`
	EndLine     int `json:"end_line"`
	StartColumn int `json:"start_column"`
	EndColumn   int `json:"end_column"`
}

type Bounds struct {
	Initialization      *string           `json:"initialization"`
	Condition           *string           `json:"condition"`
	Increment           *string           `json:"increment"`
	EstimatedIterations IterationEstimate `json:"estimated_iterations"`
	IterationFormula    *string           `json:"iteration_formula"`
	InductionVariable   *string           `json:"induction_variable"`
	MinIterations       int               `json:"min_iterations"`
}

type Operation struct {
	Type       string `json:"type"`
	Operator   string `json:"operator"`
	Expression string `json:"expression"`
	Line       int    `json:"line"`
}

type Assignment struct {
	Target   string `json:"target"`
	Source   string `json:"source"`
	Operator string `json:"operator"`
	Line     int    `json:"line"`
}

type FunctionCallOp struct {
	Function  string   `json:"function"`
	Arguments []string `json:"arguments"`
	Line      int      `json:"line"`
}

type Operations struct {
	Arithmetic    []Operation      `json:"arithmetic"`
	Logical       []Operation      `json:"logical"`
	Bitwise       []Operation      `json:"bitwise"`
	Assignment    []Assignment     `json:"assignment"`
	FunctionCalls []FunctionCallOp `json:"function_calls"`
}

type MemoryAccess struct {
	Variable      string        `json:"variable"`
	AccessPattern string        `json:"access_pattern"`
	AccessType    AccessType    `json:"access_type"`
	StridePattern StridePattern `json:"stride_pattern"`
	Dependencies  []string      `json:"dependencies"`
	Line          int           `json:"line"`
}

type MemoryAccessSet struct {
	Reads  []MemoryAccess `json:"reads"`
	Writes []MemoryAccess `json:"writes"`
}

type CallLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CallRecord is a call made directly inside a loop, with the resolution
// filled in by the call graph pass.
type CallRecord struct {
	Function       string       `json:"function"`
	QualifiedName  string       `json:"qualified_name"`
	Location       CallLocation `json:"location"`
	Resolved       bool         `json:"resolved"`
	DefinitionFile *string      `json:"definition_file"`
}

type Loop struct {
	LoopID        string          `json:"loop_id"`
	Type          LoopType        `json:"type"`
	Location      Location        `json:"location"`
	LoopBounds    Bounds          `json:"loop_bounds"`
	NestingLevel  int             `json:"nesting_level"`
	NestedLoops   []*Loop         `json:"nested_loops"`
	Operations    Operations      `json:"operations"`
	MemoryAccess  MemoryAccessSet `json:"memory_access"`
	FunctionCalls []CallRecord    `json:"function_calls"`
	Extensions    map[string]any  `json:"extensions"`
}

func NewLoop(id string, typ LoopType, loc Location, level int) *Loop {
	return &Loop{
		LoopID:        id,
		Type:          typ,
		Location:      loc,
		NestingLevel:  level,
		NestedLoops:   make([]*Loop, 0),
		FunctionCalls: make([]CallRecord, 0),
		Operations: Operations{
			Arithmetic:    make([]Operation, 0),
			Logical:       make([]Operation, 0),
			Bitwise:       make([]Operation, 0),
			Assignment:    make([]Assignment, 0),
			FunctionCalls: make([]FunctionCallOp, 0),
		},
		MemoryAccess: MemoryAccessSet{
			Reads:  make([]MemoryAccess, 0),
			Writes: make([]MemoryAccess, 0),
		},
		Extensions: make(map[string]any),
	}
}

// LoopID derives a stable identifier from where the loop starts. The path
// hash keeps ids unique across files without a process-wide counter.
func LoopID(path string, line, column int) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("loop_%s_%d_%d", hex.EncodeToString(sum[:4]), line, column)
}

// Walk visits l and every nested loop depth first.
func (l *Loop) Walk(fn func(*Loop)) {
	fn(l)
	for _, n := range l.NestedLoops {
		n.Walk(fn)
	}
}

// WalkLoops applies fn to every loop in a forest, nested ones included.
func WalkLoops(loops []*Loop, fn func(*Loop)) {
	for _, l := range loops {
		l.Walk(fn)
	}
}

// CountLoops counts every loop record in the forest, nested ones included.
func CountLoops(loops []*Loop) int {
	n := 0
	WalkLoops(loops, func(*Loop) { n++ })
	return n
}
