package analyzer

import (
	"strings"

	"loopscan/internal/analyzer/detectors"
	actx "loopscan/internal/context"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// functionWalker walks one function body depth first, building the loop tree
// and the raw call sites of the function.
type functionWalker struct {
	path      string
	ctx       *actx.AnalysisContext
	detectors []detectors.LoopDetector
	record    *models.FunctionRecord
}

func (w *functionWalker) walk(n *syntax.Node) {
	if n == nil {
		return
	}
	if n.Kind.IsLoop() {
		w.walkLoop(n)
		return
	}

	switch n.Kind {
	case syntax.KindVarDecl:
		w.ctx.Declare(n.Name, n.Type)
		if v := n.Child(syntax.FieldValue); v != nil && n.Op == "=" {
			w.rememberInit(n.Name, v)
		} else {
			delete(w.ctx.LiteralInits, n.Name)
		}
	case syntax.KindAssign:
		if left := syntax.Unparen(n.Child(syntax.FieldLeft)); left != nil && left.Kind == syntax.KindIdent {
			if n.Op == "=" {
				w.rememberInit(left.Name, n.Child(syntax.FieldRight))
			} else {
				delete(w.ctx.LiteralInits, left.Name)
			}
		}
	case syntax.KindUpdate:
		if operand := syntax.Unparen(n.Child(syntax.FieldOperand)); operand != nil && operand.Kind == syntax.KindIdent {
			delete(w.ctx.LiteralInits, operand.Name)
		}
	case syntax.KindCall:
		w.recordCall(n)
	case syntax.KindBinary:
		if w.ctx.IsStreamOperator(n) {
			w.recordStreamCall(n)
		}
	}

	for _, c := range n.Children {
		w.walk(c)
	}
}

func (w *functionWalker) rememberInit(name string, value *syntax.Node) {
	if _, ok := intLiteral(value); ok {
		w.ctx.LiteralInits[name] = syntax.Unparen(value).Text
		return
	}
	delete(w.ctx.LiteralInits, name)
}

func spanLocation(s syntax.Span) models.Location {
	return models.Location{
		StartLine:   s.StartLine,
		EndLine:     s.EndLine,
		StartColumn: s.StartColumn,
		EndColumn:   s.EndColumn,
	}
}

// walkLoop emits a Loop for n. The for initializer and range expression run
// once, so they are walked in the enclosing scope before the loop's frame is
// pushed; the condition, increment and body are walked inside it.
func (w *functionWalker) walkLoop(n *syntax.Node) {
	parent := w.ctx.CurrentLoop()
	h := headerOf(n)

	loop := models.NewLoop(
		models.LoopID(w.path, n.Span.StartLine, n.Span.StartColumn),
		loopTypeOf(n.Kind),
		spanLocation(n.Span),
		w.ctx.Depth()+1,
	)

	w.walk(h.init)
	w.walk(h.rng)

	frame := &actx.LoopFrame{Loop: loop}
	frame.Induction = inductionVariable(n.Kind, h)
	frame.Step, frame.Multiplicative = inductionStep(n.Kind, h, frame.Induction)
	if n.Kind == syntax.KindRangeFor && frame.Induction != "" {
		frame.Step = 1
	}
	loop.LoopBounds = loopBounds(n.Kind, h, w.ctx, frame)

	w.ctx.PushLoop(frame)
	for name := range declaredNames(h.init) {
		frame.Declared[name] = true
	}
	for name := range declaredNames(h.body) {
		frame.Declared[name] = true
	}
	if h.declarator != nil {
		w.ctx.Declare(h.declarator.Name, h.declarator.Type)
	}

	for _, c := range n.Children {
		switch c.Field {
		case syntax.FieldInit, syntax.FieldRange, syntax.FieldDeclarator:
		case syntax.FieldBody:
			for _, d := range w.detectors {
				d.Detect(c, w.ctx, loop)
			}
			w.walk(c)
		default:
			w.walk(c)
		}
	}
	w.ctx.PopLoop()

	if parent == nil {
		w.record.Loops = append(w.record.Loops, loop)
	} else {
		parent.Loop.NestedLoops = append(parent.Loop.NestedLoops, loop)
	}
}

// declaredNames collects variables declared under n, not counting nested
// loops.
func declaredNames(n *syntax.Node) map[string]bool {
	names := make(map[string]bool)
	syntax.Walk(n, func(c *syntax.Node) bool {
		if c != n && c.Kind.IsLoop() {
			return false
		}
		if c.Kind == syntax.KindVarDecl && c.Name != "" {
			names[c.Name] = true
		}
		return true
	})
	return names
}

func (w *functionWalker) currentLoopID() *string {
	f := w.ctx.CurrentLoop()
	if f == nil {
		return nil
	}
	id := f.Loop.LoopID
	return &id
}

func (w *functionWalker) addCall(name, spelling string, candidates []string, args []*syntax.Node, span syntax.Span) {
	loc := models.CallLocation{Line: span.StartLine, Column: span.StartColumn}
	w.record.CallSites = append(w.record.CallSites, models.CallSite{
		Callee:     name,
		Spelling:   spelling,
		Candidates: candidates,
		Location:   loc,
		LoopID:     w.currentLoopID(),
	})

	f := w.ctx.CurrentLoop()
	if f == nil {
		return
	}
	argTexts := make([]string, 0, len(args))
	for _, a := range args {
		argTexts = append(argTexts, a.Text)
	}
	f.Loop.Operations.FunctionCalls = append(f.Loop.Operations.FunctionCalls, models.FunctionCallOp{
		Function:  name,
		Arguments: argTexts,
		Line:      span.StartLine,
	})
	f.Loop.FunctionCalls = append(f.Loop.FunctionCalls, models.CallRecord{
		Function:      name,
		QualifiedName: spelling,
		Location:      loc,
	})
}

func (w *functionWalker) recordCall(n *syntax.Node) {
	name, spelling, candidates := callTarget(n, w.ctx)
	w.addCall(name, spelling, candidates, n.ChildrenOf(syntax.FieldArguments), n.Span)
}

// recordStreamCall records "std::cout << x" as a call to operator<<, the way
// the overloaded operator is actually dispatched.
func (w *functionWalker) recordStreamCall(n *syntax.Node) {
	name := "operator" + n.Op
	var args []*syntax.Node
	if right := n.Child(syntax.FieldRight); right != nil {
		args = append(args, right)
	}
	w.addCall(name, name, []string{}, args, n.Span)
}

// callTarget returns the simple callee name, the best-effort spelling used
// when resolution fails, and the qualified names to try, in C++ lookup
// order: enclosing class, enclosing namespaces from the inside out, then
// the name as written.
func callTarget(n *syntax.Node, ctx *actx.AnalysisContext) (string, string, []string) {
	fn := syntax.Unparen(n.Child(syntax.FieldFunction))
	if fn == nil {
		return n.Name, n.Name, []string{}
	}

	switch fn.Kind {
	case syntax.KindIdent:
		written := strings.TrimPrefix(stripTemplateArgs(fn.Name), "::")
		return lastSegment(written), written, scopedCandidates(written, ctx)

	case syntax.KindMember:
		method := stripTemplateArgs(fn.Name)
		receiver := syntax.Unparen(fn.Child(syntax.FieldArgument))
		typ := receiverType(receiver, ctx)
		if typ == "" {
			return method, fn.Text, []string{}
		}
		qualified := typ + "::" + method
		candidates := make([]string, 0, len(ctx.Namespaces)+1)
		if !strings.Contains(typ, "::") {
			for i := len(ctx.Namespaces); i > 0; i-- {
				candidates = append(candidates, strings.Join(ctx.Namespaces[:i], "::")+"::"+qualified)
			}
		}
		candidates = append(candidates, qualified)
		return method, qualified, candidates
	}
	return fn.Text, fn.Text, []string{}
}

func scopedCandidates(name string, ctx *actx.AnalysisContext) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if ctx.Class != "" {
		add(ctx.Class + "::" + name)
	}
	for i := len(ctx.Namespaces); i > 0; i-- {
		add(strings.Join(ctx.Namespaces[:i], "::") + "::" + name)
	}
	add(name)
	return out
}

// receiverType resolves the class of a member call's receiver from declared
// types of locals, parameters and fields.
func receiverType(n *syntax.Node, ctx *actx.AnalysisContext) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case syntax.KindIdent:
		if n.Name == "this" {
			return ctx.Class
		}
		if t, ok := ctx.TypeOf(n.Name); ok {
			return NormalizeType(t)
		}
	case syntax.KindDeref:
		return receiverType(syntax.Unparen(n.Child(syntax.FieldOperand)), ctx)
	case syntax.KindMember:
		arg := syntax.Unparen(n.Child(syntax.FieldArgument))
		if arg != nil && arg.Kind == syntax.KindIdent && arg.Name == "this" {
			if t, ok := ctx.Fields[n.Name]; ok {
				return NormalizeType(t)
			}
		}
	}
	return ""
}

var smartPointers = []string{"std::unique_ptr<", "std::shared_ptr<", "std::weak_ptr<", "unique_ptr<", "shared_ptr<", "weak_ptr<"}

// NormalizeType strips qualifiers, pointer and reference marks, and smart
// pointer wrappers from a declared type, leaving the class name.
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	for _, prefix := range []string{"const ", "volatile ", "struct ", "class ", "typename "} {
		t = strings.TrimPrefix(t, prefix)
	}
	t = strings.TrimSuffix(t, " const")
	t = strings.TrimRight(t, "*& ")
	t = strings.TrimSuffix(t, " const")
	for _, sp := range smartPointers {
		if strings.HasPrefix(t, sp) && strings.HasSuffix(t, ">") {
			return NormalizeType(t[len(sp) : len(t)-1])
		}
	}
	if t == "auto" {
		return ""
	}
	return strings.TrimSpace(t)
}

func stripTemplateArgs(name string) string {
	if i := strings.Index(name, "<"); i > 0 && !strings.HasPrefix(name, "operator") {
		return name[:i]
	}
	return name
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}
