package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	actx "loopscan/internal/context"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// loopHeader holds the parts of a loop statement by role.
type loopHeader struct {
	init       *syntax.Node
	cond       *syntax.Node
	update     *syntax.Node
	body       *syntax.Node
	declarator *syntax.Node
	rng        *syntax.Node
}

func headerOf(n *syntax.Node) loopHeader {
	return loopHeader{
		init:       n.Child(syntax.FieldInit),
		cond:       n.Child(syntax.FieldCondition),
		update:     n.Child(syntax.FieldUpdate),
		body:       n.Child(syntax.FieldBody),
		declarator: n.Child(syntax.FieldDeclarator),
		rng:        n.Child(syntax.FieldRange),
	}
}

func boundText(n *syntax.Node) *string {
	if n == nil || syntax.ContainsError(n) || n.Text == "" {
		return nil
	}
	s := n.Text
	return &s
}

func loopTypeOf(k syntax.Kind) models.LoopType {
	switch k {
	case syntax.KindWhile:
		return models.LoopWhile
	case syntax.KindDoWhile:
		return models.LoopDoWhile
	case syntax.KindRangeFor:
		return models.LoopRangeFor
	default:
		return models.LoopFor
	}
}

func intLiteral(n *syntax.Node) (int64, bool) {
	n = syntax.Unparen(n)
	if n == nil {
		return 0, false
	}
	neg := false
	if n.Kind == syntax.KindUnary && n.Op == "-" {
		neg = true
		n = syntax.Unparen(n.Child(syntax.FieldOperand))
		if n == nil {
			return 0, false
		}
	}
	if n.Kind != syntax.KindLiteral {
		return 0, false
	}
	return parseInt(n.Text, neg)
}

func parseInt(text string, neg bool) (int64, bool) {
	text = strings.TrimRight(strings.ReplaceAll(text, "'", ""), "uUlL")
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func isIdent(n *syntax.Node, name string) bool {
	n = syntax.Unparen(n)
	return n != nil && n.Kind == syntax.KindIdent && n.Name == name
}

// updatedNames returns every name assigned or incremented under n,
// nested loops included.
func updatedNames(n *syntax.Node) map[string]bool {
	names := make(map[string]bool)
	syntax.Walk(n, func(c *syntax.Node) bool {
		var target *syntax.Node
		switch c.Kind {
		case syntax.KindAssign:
			target = c.Child(syntax.FieldLeft)
		case syntax.KindUpdate:
			target = c.Child(syntax.FieldOperand)
		default:
			return true
		}
		target = syntax.Unparen(target)
		switch {
		case target == nil:
		case target.Kind == syntax.KindIdent:
			names[target.Name] = true
		case target.Kind == syntax.KindMember:
			names[target.Name] = true
		}
		return true
	})
	return names
}

// inductionVariable picks the controlling variable of a loop: the variable a
// for loop initializes or steps, the condition variable a while loop updates
// in its body, or the element variable of a range-for.
func inductionVariable(kind syntax.Kind, h loopHeader) string {
	switch kind {
	case syntax.KindRangeFor:
		if h.declarator != nil {
			return h.declarator.Name
		}
		return ""

	case syntax.KindFor:
		if name := initializedName(h.init); name != "" {
			return name
		}
		if name := steppedName(h.update); name != "" {
			return name
		}
		if names := conditionNames(h.cond); len(names) > 0 {
			return names[0]
		}
		return ""

	default:
		names := conditionNames(h.cond)
		updated := updatedNames(h.body)
		for _, name := range names {
			if updated[name] {
				return name
			}
		}
		return ""
	}
}

func initializedName(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	name := ""
	syntax.Walk(n, func(c *syntax.Node) bool {
		if name != "" {
			return false
		}
		switch c.Kind {
		case syntax.KindVarDecl:
			name = c.Name
		case syntax.KindAssign:
			if left := syntax.Unparen(c.Child(syntax.FieldLeft)); left != nil && left.Kind == syntax.KindIdent {
				name = left.Name
			}
		}
		return name == ""
	})
	return name
}

func steppedName(n *syntax.Node) string {
	name := ""
	syntax.Walk(n, func(c *syntax.Node) bool {
		if name != "" {
			return false
		}
		var target *syntax.Node
		switch c.Kind {
		case syntax.KindUpdate:
			target = c.Child(syntax.FieldOperand)
		case syntax.KindAssign:
			target = c.Child(syntax.FieldLeft)
		}
		if target = syntax.Unparen(target); target != nil && target.Kind == syntax.KindIdent {
			name = target.Name
		}
		return name == ""
	})
	return name
}

// conditionNames lists identifiers of a condition that are not call targets.
func conditionNames(n *syntax.Node) []string {
	seen := make(map[string]bool)
	var names []string
	syntax.Walk(n, func(c *syntax.Node) bool {
		if c.Kind == syntax.KindCall {
			for _, arg := range c.ChildrenOf(syntax.FieldArguments) {
				for _, name := range conditionNames(arg) {
					if !seen[name] {
						seen[name] = true
						names = append(names, name)
					}
				}
			}
			return false
		}
		if c.Kind == syntax.KindIdent && c.Field != syntax.FieldMember && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
		return true
	})
	return names
}

// inductionStep finds how the induction variable changes per iteration. For
// loops look at the increment clause; while loops look at their own body.
func inductionStep(kind syntax.Kind, h loopHeader, name string) (step int, multiplicative bool) {
	if name == "" {
		return 0, false
	}
	scope := h.update
	if kind == syntax.KindWhile || kind == syntax.KindDoWhile {
		scope = h.body
	}
	found := false
	syntax.Walk(scope, func(c *syntax.Node) bool {
		if found {
			return false
		}
		if c.Kind.IsLoop() && c != scope {
			return false
		}
		switch c.Kind {
		case syntax.KindUpdate:
			if isIdent(c.Child(syntax.FieldOperand), name) {
				found = true
				step = 1
				if c.Op == "--" {
					step = -1
				}
			}
		case syntax.KindAssign:
			if isIdent(c.Child(syntax.FieldLeft), name) {
				found = true
				step, multiplicative = assignStep(c, name)
			}
		}
		return !found
	})
	return step, multiplicative
}

func assignStep(n *syntax.Node, name string) (int, bool) {
	right := n.Child(syntax.FieldRight)
	switch n.Op {
	case "+=", "-=":
		k, ok := intLiteral(right)
		if !ok {
			return 0, false
		}
		if n.Op == "-=" {
			k = -k
		}
		return int(k), false
	case "*=", "/=", "<<=", ">>=":
		return 0, true
	case "=":
		r := syntax.Unparen(right)
		if r == nil || r.Kind != syntax.KindBinary {
			return 0, false
		}
		left, other := r.Child(syntax.FieldLeft), r.Child(syntax.FieldRight)
		switch r.Op {
		case "+", "-":
			if !isIdent(left, name) {
				if r.Op == "-" || !isIdent(other, name) {
					return 0, false
				}
				other = left
			}
			k, ok := intLiteral(other)
			if !ok {
				return 0, false
			}
			if r.Op == "-" {
				k = -k
			}
			return int(k), false
		case "*", "/", "<<", ">>":
			if isIdent(left, name) || isIdent(other, name) {
				return 0, true
			}
		}
	}
	return 0, false
}

// startValue returns the expression the induction variable starts from. For
// while loops it is the remembered literal initializer, if any.
func startValue(kind syntax.Kind, h loopHeader, ctx *actx.AnalysisContext, name string) *syntax.Node {
	if kind == syntax.KindFor {
		var start *syntax.Node
		syntax.Walk(h.init, func(c *syntax.Node) bool {
			if start != nil {
				return false
			}
			switch c.Kind {
			case syntax.KindVarDecl:
				if c.Name == name {
					start = c.Child(syntax.FieldValue)
				}
			case syntax.KindAssign:
				if c.Op == "=" && isIdent(c.Child(syntax.FieldLeft), name) {
					start = c.Child(syntax.FieldRight)
				}
			}
			return start == nil
		})
		return start
	}
	if text, ok := ctx.LiteralInits[name]; ok {
		return &syntax.Node{Kind: syntax.KindLiteral, Text: text}
	}
	return nil
}

// readOnlyBound reports whether n is built only from literals, parameters
// and class fields (directly or through member access) that the loop never
// reassigns.
func readOnlyBound(n *syntax.Node, ctx *actx.AnalysisContext, assigned map[string]bool) bool {
	ok := true
	syntax.Walk(n, func(c *syntax.Node) bool {
		if !ok {
			return false
		}
		switch c.Kind {
		case syntax.KindLiteral, syntax.KindParen:
		case syntax.KindBinary:
			switch c.Op {
			case "+", "-", "*", "/", "%", "<<", ">>":
			default:
				ok = false
			}
		case syntax.KindUnary:
			ok = c.Op == "-" || c.Op == "+"
		case syntax.KindMember:
			if assigned[c.Name] {
				ok = false
			}
		case syntax.KindIdent:
			switch {
			case c.Field == syntax.FieldMember:
			case c.Name == "this":
			case assigned[c.Name]:
				ok = false
			case ctx.IsParam(c.Name), ctx.IsField(c.Name):
			default:
				ok = false
			}
		default:
			ok = false
		}
		return ok
	})
	return ok
}

func atomic(n *syntax.Node) bool {
	n = syntax.Unparen(n)
	if n == nil {
		return true
	}
	switch n.Kind {
	case syntax.KindIdent, syntax.KindLiteral, syntax.KindMember:
		return true
	}
	return false
}

func wrap(text string, atom bool) string {
	if atom {
		return text
	}
	return "(" + text + ")"
}

// tripFormula renders hi-lo (+1 when inclusive), divided by the step when it
// is not 1. A literal lo is folded into the constant term.
func tripFormula(hi, lo *syntax.Node, inclusive bool, step int) string {
	hiText := wrap(hi.Text, atomic(hi))
	var f string
	if v, ok := intLiteral(lo); ok {
		adj := v
		if inclusive {
			adj--
		}
		switch {
		case adj == 0:
			f = hi.Text
		case adj > 0:
			f = fmt.Sprintf("%s-%d", hiText, adj)
		default:
			f = fmt.Sprintf("%s+%d", hiText, -adj)
		}
	} else {
		f = hiText + "-" + wrap(lo.Text, atomic(lo))
		if inclusive {
			f += "+1"
		}
	}
	if step > 1 {
		f = fmt.Sprintf("(%s)/%d", f, step)
	}
	return f
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

// estimateIterations classifies a loop's trip count. Rules, in order: both
// ends literal with a fixed step is constant; ends built from read-only
// parameters and fields give a symbolic expression; sentinel, iterator and
// missing conditions are unknown; anything else is dynamic.
func estimateIterations(kind syntax.Kind, h loopHeader, ctx *actx.AnalysisContext, frame *actx.LoopFrame) (models.IterationEstimate, *string) {
	if kind == syntax.KindRangeFor {
		return models.EstimateUnknown, nil
	}
	if h.cond == nil || syntax.ContainsError(h.cond) || (kind == syntax.KindFor && syntax.ContainsError(h.init)) {
		return models.EstimateUnknown, nil
	}
	cond := syntax.Unparen(h.cond)
	if cond.Kind != syntax.KindBinary {
		return models.EstimateUnknown, nil
	}
	op := cond.Op
	switch op {
	case "<", "<=", ">", ">=":
	default:
		return models.EstimateUnknown, nil
	}

	name := frame.Induction
	if name == "" {
		return models.EstimateDynamic, nil
	}
	var bound *syntax.Node
	switch {
	case isIdent(cond.Child(syntax.FieldLeft), name):
		bound = syntax.Unparen(cond.Child(syntax.FieldRight))
	case isIdent(cond.Child(syntax.FieldRight), name):
		bound = syntax.Unparen(cond.Child(syntax.FieldLeft))
		op = flip(op)
	default:
		return models.EstimateDynamic, nil
	}
	if bound == nil || frame.Multiplicative || frame.Step == 0 {
		return models.EstimateDynamic, nil
	}
	increasing := op == "<" || op == "<="
	if increasing != (frame.Step > 0) {
		return models.EstimateDynamic, nil
	}
	inclusive := strings.HasSuffix(op, "=")
	step := frame.Step
	if step < 0 {
		step = -step
	}

	start := startValue(kind, h, ctx, name)
	if start == nil {
		return models.EstimateDynamic, nil
	}

	s, startLiteral := intLiteral(start)
	if b, ok := intLiteral(bound); ok && startLiteral {
		span := b - s
		if !increasing {
			span = s - b
		}
		if inclusive {
			span++
		}
		count := int64(0)
		if span > 0 {
			count = (span + int64(step) - 1) / int64(step)
		}
		if kind == syntax.KindDoWhile && count < 1 {
			count = 1
		}
		f := strconv.FormatInt(count, 10)
		return models.EstimateConstant, &f
	}

	assigned := updatedNames(h.body)
	if !readOnlyBound(bound, ctx, assigned) {
		return models.EstimateDynamic, nil
	}
	if !startLiteral && !readOnlyBound(start, ctx, assigned) {
		return models.EstimateDynamic, nil
	}

	var f string
	if increasing {
		f = tripFormula(bound, start, inclusive, step)
	} else {
		f = tripFormula(start, bound, inclusive, step)
	}
	return models.EstimateExpression, &f
}

// loopBounds assembles the bounds record for a loop.
func loopBounds(kind syntax.Kind, h loopHeader, ctx *actx.AnalysisContext, frame *actx.LoopFrame) models.Bounds {
	b := models.Bounds{EstimatedIterations: models.EstimateUnknown}
	switch kind {
	case syntax.KindFor:
		b.Initialization = boundText(h.init)
		b.Condition = boundText(h.cond)
		b.Increment = boundText(h.update)
	case syntax.KindWhile, syntax.KindDoWhile:
		b.Condition = boundText(h.cond)
	case syntax.KindRangeFor:
		if h.declarator != nil && h.rng != nil && !syntax.ContainsError(h.rng) {
			s := strings.TrimSpace(h.declarator.Type+" "+h.declarator.Name) + " : " + h.rng.Text
			b.Initialization = &s
		}
	}
	if frame.Induction != "" {
		v := frame.Induction
		b.InductionVariable = &v
	}
	b.EstimatedIterations, b.IterationFormula = estimateIterations(kind, h, ctx, frame)
	if kind == syntax.KindDoWhile {
		b.MinIterations = 1
	}
	return b
}
