package analyzer

import (
	"fmt"
	"log/slog"
	"strings"

	"loopscan/internal/analyzer/detectors"
	actx "loopscan/internal/context"
	"loopscan/internal/logging"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// includeScanLines bounds how far into a file #include directives are
// collected.
const includeScanLines = 100

type Analyzer struct {
	detectors []detectors.LoopDetector
	logger    *slog.Logger
}

func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{
		detectors: []detectors.LoopDetector{
			detectors.NewOperationDetector(),
			detectors.NewMemoryAccessDetector(),
		},
		logger: logging.OrDiscard(logger),
	}
}

// AnalyzeFile turns one lowered translation unit into a FileRecord. The
// record's call sites are raw; BuildCallGraph resolves them once every file
// of the run is known.
func (a *Analyzer) AnalyzeFile(root *syntax.Node, info models.FileInfo) *models.FileRecord {
	record := models.NewFileRecord(info)
	c := &collector{analyzer: a, record: record, path: info.Path}
	c.collect(root, nil, "")
	record.FileInfo.TotalLoops = record.CountLoops()

	a.logger.Debug("analyzed file",
		"path", info.Path,
		"functions", len(record.Functions),
		"classes", len(record.Classes),
		"loops", record.FileInfo.TotalLoops)
	return record
}

// GetDetectorCount returns the number of active detectors
func (a *Analyzer) GetDetectorCount() int {
	return len(a.detectors)
}

// GetDetectorNames returns the names of all active detectors
func (a *Analyzer) GetDetectorNames() []string {
	names := make([]string, len(a.detectors))
	for i, detector := range a.detectors {
		names[i] = detector.Name()
	}
	return names
}

type collector struct {
	analyzer *Analyzer
	record   *models.FileRecord
	path     string
}

func qualify(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, "::") + "::" + name
}

func (c *collector) collect(n *syntax.Node, namespaces []string, class string) {
	if n == nil {
		return
	}
	switch n.Kind {
	case syntax.KindInclude:
		if n.Span.StartLine <= includeScanLines && n.Name != "" {
			c.record.FileInfo.Includes = append(c.record.FileInfo.Includes, n.Name)
		}
		return

	case syntax.KindNamespace:
		inner := namespaces
		if n.Name != "" {
			inner = append(append([]string(nil), namespaces...), strings.Split(n.Name, "::")...)
		}
		for _, child := range n.Children {
			c.collect(child, inner, "")
		}
		return

	case syntax.KindClass:
		c.collectClass(n, namespaces, class)
		return

	case syntax.KindFunction:
		c.collectFunction(n, namespaces, class)
		return

	case syntax.KindFor, syntax.KindWhile, syntax.KindDoWhile, syntax.KindRangeFor,
		syntax.KindCompound, syntax.KindExprStmt:
		// Statements only occur inside function bodies.
		return
	}

	for _, child := range n.Children {
		c.collect(child, namespaces, class)
	}
}

func (c *collector) collectClass(n *syntax.Node, namespaces []string, outer string) {
	if n.Name == "" {
		return
	}
	scope := namespaces
	if outer != "" {
		scope = strings.Split(outer, "::")
	}
	qualified := qualify(scope, n.Name)
	class := c.classRecord(n.Name, qualified, spanLocation(n.Span))
	class.OutOfLine = false
	class.Location = spanLocation(n.Span)

	for _, child := range n.Children {
		if child.Kind == syntax.KindField && child.Name != "" {
			class.Fields = append(class.Fields, models.FieldInfo{Name: child.Name, Type: child.Type})
		}
	}
	for _, child := range n.Children {
		switch child.Kind {
		case syntax.KindFunction:
			c.collectFunction(child, namespaces, qualified)
		case syntax.KindClass:
			c.collectClass(child, namespaces, qualified)
		case syntax.KindDecl:
			for _, inner := range child.Children {
				if inner.Kind == syntax.KindClass {
					c.collectClass(inner, namespaces, qualified)
				}
			}
		}
	}
}

func (c *collector) classRecord(name, qualified string, loc models.Location) *models.ClassRecord {
	if existing, ok := c.record.Classes[qualified]; ok {
		return existing
	}
	class := models.NewClassRecord(name, qualified, loc)
	c.record.Classes[qualified] = class
	return class
}

func (c *collector) collectFunction(n *syntax.Node, namespaces []string, class string) {
	body := n.Child(syntax.FieldBody)
	if body == nil || n.Name == "" {
		return
	}

	name := n.Name
	var qualified string
	switch {
	case class != "":
		qualified = class + "::" + name
	case strings.Contains(strings.TrimPrefix(name, "::"), "::"):
		// Out-of-line method definition such as "void Matrix::print()".
		written := strings.TrimPrefix(name, "::")
		i := strings.LastIndex(written, "::")
		classPart := written[:i]
		name = written[i+2:]
		class = qualify(namespaces, classPart)
		if strings.HasPrefix(n.Name, "::") {
			class = classPart
		}
		qualified = class + "::" + name
		if _, ok := c.record.Classes[class]; !ok {
			oo := c.classRecord(lastSegment(classPart), class, spanLocation(n.Span))
			oo.OutOfLine = true
		}
	default:
		qualified = qualify(namespaces, name)
	}

	fn := models.NewFunctionRecord(name, qualified, spanLocation(n.Span))
	fn.ReturnType = n.Type

	ctx := actx.NewAnalysisContext(c.path, qualified, class, namespaces)
	if params := n.Child(syntax.FieldParams); params != nil {
		for _, p := range params.Children {
			if p.Kind != syntax.KindParam {
				continue
			}
			fn.Parameters = append(fn.Parameters, models.Parameter{Name: p.Name, Type: p.Type})
			if p.Name != "" {
				ctx.Params[p.Name] = p.Type
			}
		}
	}
	if rec, ok := c.record.Classes[class]; ok {
		for _, f := range rec.Fields {
			ctx.Fields[f.Name] = f.Type
		}
	}

	w := &functionWalker{
		path:      c.path,
		ctx:       ctx,
		detectors: c.analyzer.detectors,
		record:    fn,
	}
	w.walk(body)

	if class == "" {
		c.record.Functions[uniqueKey(c.record.Functions, qualified, n.Span.StartLine)] = fn
		return
	}
	methods := c.record.Classes[class].Methods
	methods[uniqueKey(methods, name, n.Span.StartLine)] = fn
}

// uniqueKey keys overloads and redefinitions by name and line so neither
// replaces the other.
func uniqueKey(m map[string]*models.FunctionRecord, name string, line int) string {
	if _, taken := m[name]; !taken {
		return name
	}
	return fmt.Sprintf("%s@%d", name, line)
}
