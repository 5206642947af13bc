package context

import (
	"strings"

	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// AnalysisContext carries what detectors need to know about the function
// being walked: its scope, the declared types of names it can see, and the
// stack of loops enclosing the current statement.
type AnalysisContext struct {
	File       string
	Function   string
	Class      string
	Namespaces []string

	Params map[string]string
	Locals map[string]string
	Fields map[string]string
	// LiteralInits remembers integer literal initializers of locals so a
	// while loop's start value can be recovered.
	LiteralInits map[string]string

	loops []*LoopFrame
}

// LoopFrame is one enclosing loop during the walk.
type LoopFrame struct {
	Loop      *models.Loop
	Induction string
	// Step is the signed per-iteration change of the induction variable, or
	// zero when it is not a fixed additive step.
	Step int
	// Multiplicative is set when the induction variable is scaled rather
	// than stepped, as in i *= 2.
	Multiplicative bool
	Declared       map[string]bool
}

func NewAnalysisContext(file, function, class string, namespaces []string) *AnalysisContext {
	return &AnalysisContext{
		File:         file,
		Function:     function,
		Class:        class,
		Namespaces:   namespaces,
		Params:       make(map[string]string),
		Locals:       make(map[string]string),
		Fields:       make(map[string]string),
		LiteralInits: make(map[string]string),
	}
}

func (c *AnalysisContext) PushLoop(frame *LoopFrame) {
	if frame.Declared == nil {
		frame.Declared = make(map[string]bool)
	}
	c.loops = append(c.loops, frame)
}

func (c *AnalysisContext) PopLoop() {
	if len(c.loops) > 0 {
		c.loops = c.loops[:len(c.loops)-1]
	}
}

// CurrentLoop returns the innermost enclosing loop frame, or nil.
func (c *AnalysisContext) CurrentLoop() *LoopFrame {
	if len(c.loops) == 0 {
		return nil
	}
	return c.loops[len(c.loops)-1]
}

func (c *AnalysisContext) Depth() int {
	return len(c.loops)
}

// Loops returns the enclosing frames, outermost first.
func (c *AnalysisContext) Loops() []*LoopFrame {
	return c.loops
}

// IsLoopScoped reports whether name is an enclosing induction variable or
// was declared inside an enclosing loop.
func (c *AnalysisContext) IsLoopScoped(name string) bool {
	for _, f := range c.loops {
		if f.Induction == name || f.Declared[name] {
			return true
		}
	}
	return false
}

func (c *AnalysisContext) Declare(name, typ string) {
	if name == "" {
		return
	}
	c.Locals[name] = typ
	if f := c.CurrentLoop(); f != nil {
		f.Declared[name] = true
	}
}

// TypeOf returns the declared type of a local, parameter or class field.
func (c *AnalysisContext) TypeOf(name string) (string, bool) {
	if t, ok := c.Locals[name]; ok {
		return t, true
	}
	if t, ok := c.Params[name]; ok {
		return t, true
	}
	if t, ok := c.Fields[name]; ok {
		return t, true
	}
	return "", false
}

func (c *AnalysisContext) IsParam(name string) bool {
	_, ok := c.Params[name]
	return ok
}

func (c *AnalysisContext) IsField(name string) bool {
	if _, local := c.Locals[name]; local {
		return false
	}
	_, ok := c.Fields[name]
	return ok
}

var streamObjects = map[string]bool{
	"cout": true, "cerr": true, "clog": true, "cin": true,
	"std::cout": true, "std::cerr": true, "std::clog": true, "std::cin": true,
}

// IsStreamOperator reports whether a << or >> expression is stream
// insertion or extraction rather than a shift. The leftmost operand of the
// chain decides: a standard stream object or a variable of a stream type.
func (c *AnalysisContext) IsStreamOperator(n *syntax.Node) bool {
	if n == nil || n.Kind != syntax.KindBinary || (n.Op != "<<" && n.Op != ">>") {
		return false
	}
	left := n
	for left.Kind == syntax.KindBinary && (left.Op == "<<" || left.Op == ">>") {
		next := left.Child(syntax.FieldLeft)
		if next == nil {
			return false
		}
		left = syntax.Unparen(next)
	}
	if left.Kind != syntax.KindIdent {
		return false
	}
	if streamObjects[left.Name] {
		return true
	}
	if t, ok := c.TypeOf(left.Name); ok {
		return strings.Contains(t, "stream")
	}
	return false
}
