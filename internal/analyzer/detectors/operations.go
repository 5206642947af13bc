package detectors

import (
	actx "loopscan/internal/context"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// OperationDetector buckets the operators in a loop body into arithmetic,
// logical, bitwise and assignment operations.
type OperationDetector struct{}

func NewOperationDetector() *OperationDetector {
	return &OperationDetector{}
}

func (d *OperationDetector) Name() string {
	return "Operation Classifier"
}

var binaryOps = map[string]struct {
	bucket string
	kind   string
}{
	"+":  {"arithmetic", "add"},
	"-":  {"arithmetic", "subtract"},
	"*":  {"arithmetic", "multiply"},
	"/":  {"arithmetic", "divide"},
	"%":  {"arithmetic", "modulo"},
	"&&": {"logical", "and"},
	"||": {"logical", "or"},
	"==": {"logical", "equal"},
	"!=": {"logical", "not_equal"},
	"<":  {"logical", "less"},
	">":  {"logical", "greater"},
	"<=": {"logical", "less_equal"},
	">=": {"logical", "greater_equal"},
	"&":  {"bitwise", "and"},
	"|":  {"bitwise", "or"},
	"^":  {"bitwise", "xor"},
	"<<": {"bitwise", "shift_left"},
	">>": {"bitwise", "shift_right"},
}

func (d *OperationDetector) Detect(body *syntax.Node, ctx *actx.AnalysisContext, loop *models.Loop) {
	ops := &loop.Operations
	walkOwnScope(body, func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.KindBinary:
			if ctx.IsStreamOperator(n) {
				return true
			}
			if op, ok := binaryOps[n.Op]; ok {
				d.add(ops, op.bucket, models.Operation{
					Type:       op.kind,
					Operator:   n.Op,
					Expression: n.Text,
					Line:       n.Span.StartLine,
				})
			}

		case syntax.KindUnary:
			var bucket, kind string
			switch n.Op {
			case "!":
				bucket, kind = "logical", "not"
			case "~":
				bucket, kind = "bitwise", "not"
			case "-":
				bucket, kind = "arithmetic", "negate"
			default:
				return true
			}
			d.add(ops, bucket, models.Operation{Type: kind, Operator: n.Op, Expression: n.Text, Line: n.Span.StartLine})

		case syntax.KindUpdate:
			kind := "increment"
			if n.Op == "--" {
				kind = "decrement"
			}
			d.add(ops, "arithmetic", models.Operation{Type: kind, Operator: n.Op, Expression: n.Text, Line: n.Span.StartLine})

		case syntax.KindAssign:
			ops.Assignment = append(ops.Assignment, models.Assignment{
				Target:   textOf(n.Child(syntax.FieldLeft)),
				Source:   textOf(n.Child(syntax.FieldRight)),
				Operator: n.Op,
				Line:     n.Span.StartLine,
			})

		case syntax.KindVarDecl:
			if n.Op == "=" {
				ops.Assignment = append(ops.Assignment, models.Assignment{
					Target:   n.Name,
					Source:   textOf(n.Child(syntax.FieldValue)),
					Operator: "=",
					Line:     n.Span.StartLine,
				})
			}
		}
		return true
	})
}

func (d *OperationDetector) add(ops *models.Operations, bucket string, op models.Operation) {
	switch bucket {
	case "arithmetic":
		ops.Arithmetic = append(ops.Arithmetic, op)
	case "logical":
		ops.Logical = append(ops.Logical, op)
	case "bitwise":
		ops.Bitwise = append(ops.Bitwise, op)
	}
}

func textOf(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	return n.Text
}
