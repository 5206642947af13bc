package detectors

import (
	actx "loopscan/internal/context"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// MemoryAccessDetector records array, pointer and member accesses in a loop
// body and guesses how their addresses advance across iterations. The
// results are heuristic: no alias or type analysis is done.
type MemoryAccessDetector struct{}

func NewMemoryAccessDetector() *MemoryAccessDetector {
	return &MemoryAccessDetector{}
}

func (d *MemoryAccessDetector) Name() string {
	return "Memory Access Analyzer"
}

type accessRole int

const (
	roleRead accessRole = iota
	roleWrite
	roleReadWrite
)

type accessVisitor struct {
	ctx  *actx.AnalysisContext
	loop *models.Loop
}

func (d *MemoryAccessDetector) Detect(body *syntax.Node, ctx *actx.AnalysisContext, loop *models.Loop) {
	v := &accessVisitor{ctx: ctx, loop: loop}
	v.visit(body, roleRead)
}

func isAccess(n *syntax.Node) bool {
	switch n.Kind {
	case syntax.KindSubscript, syntax.KindDeref, syntax.KindMember:
		return true
	}
	return false
}

func (v *accessVisitor) visit(n *syntax.Node, role accessRole) {
	if n == nil || n.Kind.IsLoop() {
		return
	}
	switch n.Kind {
	case syntax.KindAssign:
		target := roleWrite
		if n.Op != "=" {
			target = roleReadWrite
		}
		v.visit(n.Child(syntax.FieldLeft), target)
		v.visit(n.Child(syntax.FieldRight), roleRead)
		return

	case syntax.KindUpdate:
		v.visit(n.Child(syntax.FieldOperand), roleReadWrite)
		return

	case syntax.KindCall:
		for _, c := range n.Children {
			if c.Field == syntax.FieldFunction {
				// obj.method() is a call, not a member access; only the
				// receiver can be an access.
				if c.Kind == syntax.KindMember {
					v.visit(c.Child(syntax.FieldArgument), roleRead)
				}
				continue
			}
			v.visit(c, roleRead)
		}
		return

	case syntax.KindSubscript, syntax.KindDeref, syntax.KindMember:
		v.record(n, role)
		v.visitChain(n)
		return
	}

	for _, c := range n.Children {
		v.visit(c, roleRead)
	}
}

// visitChain descends an access chain without recording its inner links,
// visiting index expressions and non-access operands as reads.
func (v *accessVisitor) visitChain(n *syntax.Node) {
	var next *syntax.Node
	switch n.Kind {
	case syntax.KindSubscript:
		v.visit(n.Child(syntax.FieldIndex), roleRead)
		next = n.Child(syntax.FieldArgument)
	case syntax.KindDeref:
		next = n.Child(syntax.FieldOperand)
	case syntax.KindMember:
		next = n.Child(syntax.FieldArgument)
	}
	next = syntax.Unparen(next)
	if next == nil {
		return
	}
	if isAccess(next) {
		v.visitChain(next)
		return
	}
	v.visit(next, roleRead)
}

func (v *accessVisitor) record(n *syntax.Node, role accessRole) {
	access := v.describe(n)
	switch role {
	case roleWrite:
		v.loop.MemoryAccess.Writes = append(v.loop.MemoryAccess.Writes, access)
	case roleReadWrite:
		v.loop.MemoryAccess.Reads = append(v.loop.MemoryAccess.Reads, access)
		v.loop.MemoryAccess.Writes = append(v.loop.MemoryAccess.Writes, access)
	default:
		v.loop.MemoryAccess.Reads = append(v.loop.MemoryAccess.Reads, access)
	}
}

// describe classifies one access chain. indices are the expressions that
// select the element, in source order.
func (v *accessVisitor) describe(n *syntax.Node) models.MemoryAccess {
	var (
		accessType models.AccessType
		variable   string
		indices    []*syntax.Node
	)

	switch n.Kind {
	case syntax.KindSubscript:
		base := n
		for base.Kind == syntax.KindSubscript {
			indices = append([]*syntax.Node{base.Child(syntax.FieldIndex)}, indices...)
			base = syntax.Unparen(base.Child(syntax.FieldArgument))
			if base == nil {
				break
			}
		}
		accessType = models.ArrayAccess(len(indices))
		variable = textOf(base)

	case syntax.KindDeref:
		accessType = models.AccessPointer
		operand := syntax.Unparen(n.Child(syntax.FieldOperand))
		variable = rootName(operand)
		indices = []*syntax.Node{operand}

	case syntax.KindMember:
		accessType = models.AccessStructMember
		arg := syntax.Unparen(n.Child(syntax.FieldArgument))
		variable = textOf(arg)
		// a[i].x advances with the index of the underlying element.
		for cur := arg; cur != nil && isAccess(cur); cur = syntax.Unparen(cur.Child(syntax.FieldArgument)) {
			if cur.Kind == syntax.KindSubscript {
				indices = append([]*syntax.Node{cur.Child(syntax.FieldIndex)}, indices...)
			}
		}
	}

	return models.MemoryAccess{
		Variable:      variable,
		AccessPattern: n.Text,
		AccessType:    accessType,
		StridePattern: v.stride(indices),
		Dependencies:  v.dependencies(n, variable),
		Line:          n.Span.StartLine,
	}
}

func rootName(n *syntax.Node) string {
	for n != nil {
		switch n.Kind {
		case syntax.KindIdent:
			return n.Name
		case syntax.KindBinary:
			n = syntax.Unparen(n.Child(syntax.FieldLeft))
		case syntax.KindUpdate, syntax.KindDeref, syntax.KindUnary:
			n = syntax.Unparen(n.Child(syntax.FieldOperand))
		case syntax.KindSubscript, syntax.KindMember:
			n = syntax.Unparen(n.Child(syntax.FieldArgument))
		default:
			return n.Text
		}
	}
	return ""
}

func (v *accessVisitor) stride(indices []*syntax.Node) models.StridePattern {
	frames := v.ctx.Loops()
	innermost := -1
	position := -1

	for pos, idx := range indices {
		if idx == nil {
			continue
		}
		if indirect(idx) {
			return models.StrideRandom
		}
		for depth, f := range frames {
			if f.Induction == "" || !mentions(idx, f.Induction) {
				continue
			}
			if scaled(idx, f.Induction) {
				return models.StrideStrided
			}
			if depth > innermost {
				innermost, position = depth, pos
			} else if depth == innermost && pos > position {
				position = pos
			}
		}
	}

	if innermost < 0 {
		return models.StrideRandom
	}
	frame := frames[innermost]
	if frame.Multiplicative || frame.Step > 1 || frame.Step < -1 {
		return models.StrideStrided
	}

	switch {
	case len(indices) <= 1:
		return models.StrideSequential
	case position == len(indices)-1:
		return models.StrideRowMajor
	case position == 0:
		return models.StrideColumnMajor
	default:
		return models.StrideStrided
	}
}

// indirect reports whether an index is itself loaded from memory or
// computed by a call, which makes the address unpredictable.
func indirect(n *syntax.Node) bool {
	found := false
	syntax.Walk(n, func(c *syntax.Node) bool {
		if c.Kind == syntax.KindSubscript || c.Kind == syntax.KindCall || c.Kind == syntax.KindDeref {
			found = true
		}
		return !found
	})
	return found
}

func mentions(n *syntax.Node, name string) bool {
	found := false
	syntax.Walk(n, func(c *syntax.Node) bool {
		if c.Kind == syntax.KindIdent && c.Field != syntax.FieldMember && c.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// scaled reports whether name appears under a multiplicative or modulo
// operator, as in a[i*n + j] or a[i % k].
func scaled(n *syntax.Node, name string) bool {
	found := false
	syntax.Walk(n, func(c *syntax.Node) bool {
		if c.Kind == syntax.KindBinary && (c.Op == "*" || c.Op == "/" || c.Op == "%" || c.Op == "<<") && mentions(c, name) {
			found = true
		}
		return !found
	})
	return found
}

func (v *accessVisitor) dependencies(n *syntax.Node, variable string) []string {
	deps := make([]string, 0)
	for _, name := range syntax.Identifiers(n) {
		if name == variable || !v.ctx.IsLoopScoped(name) {
			continue
		}
		deps = append(deps, name)
	}
	return deps
}
