package syntax

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// TreeSitterProvider parses C and C++ with the bundled tree-sitter grammars
// and lowers the concrete tree into Nodes. Parsers are pooled per language so
// one provider can serve concurrent workers.
type TreeSitterProvider struct {
	cPool   sync.Pool
	cppPool sync.Pool
}

func NewTreeSitterProvider() *TreeSitterProvider {
	return &TreeSitterProvider{
		cPool: sync.Pool{
			New: func() any {
				parser := sitter.NewParser()
				parser.SetLanguage(c.GetLanguage())
				return parser
			},
		},
		cppPool: sync.Pool{
			New: func() any {
				parser := sitter.NewParser()
				parser.SetLanguage(cpp.GetLanguage())
				return parser
			},
		},
	}
}

func (p *TreeSitterProvider) Parse(ctx context.Context, path string, flags []string) (*Node, error) {
	lang, err := DetectLanguage(path, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailure, path, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailure, err)
	}
	return p.ParseSource(ctx, lang, src)
}

// ParseSource parses an in-memory buffer.
func (p *TreeSitterProvider) ParseSource(ctx context.Context, lang Language, src []byte) (*Node, error) {
	pool := &p.cPool
	if lang == LanguageCPP {
		pool = &p.cppPool
	}
	parser := pool.Get().(*sitter.Parser)
	defer func() {
		parser.Reset()
		pool.Put(parser)
	}()

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailure, err)
	}
	if tree == nil {
		return nil, ErrParseFailure
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, ErrParseFailure
	}
	l := &lowerer{src: src}
	return l.translationUnit(root), nil
}

type lowerer struct {
	src []byte
}

func (l *lowerer) span(n *sitter.Node) Span {
	start, end := n.StartPoint(), n.EndPoint()
	return Span{
		StartLine:   int(start.Row) + 1,
		StartColumn: int(start.Column) + 1,
		EndLine:     int(end.Row) + 1,
		EndColumn:   int(end.Column) + 1,
	}
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return NormalizeText(n.Content(l.src))
}

func (l *lowerer) node(kind Kind, n *sitter.Node, field string) *Node {
	return &Node{Kind: kind, Field: field, Span: l.span(n), Text: l.text(n)}
}

// container builds a node without text; function, class and block bodies
// would otherwise duplicate most of the file.
func (l *lowerer) container(kind Kind, n *sitter.Node, field string) *Node {
	return &Node{Kind: kind, Field: field, Span: l.span(n)}
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

func operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

func isClassSpecifier(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "class_specifier", "struct_specifier", "union_specifier":
		return n.ChildByFieldName("body") != nil
	}
	return false
}

func (l *lowerer) translationUnit(n *sitter.Node) *Node {
	out := l.container(KindTranslationUnit, n, "")
	out.Children = l.lowerAll(n, "")
	return out
}

func (l *lowerer) lowerAll(n *sitter.Node, field string) []*Node {
	var out []*Node
	for _, c := range namedChildren(n) {
		if lowered := l.lower(c, field); lowered != nil {
			out = append(out, lowered)
		}
	}
	return out
}

func (l *lowerer) lower(n *sitter.Node, field string) *Node {
	if n == nil {
		return nil
	}
	if n.IsMissing() {
		return l.node(KindError, n, field)
	}

	switch n.Type() {
	case "ERROR":
		out := l.node(KindError, n, field)
		out.Children = l.lowerAll(n, "")
		return out

	case "preproc_include":
		out := l.node(KindInclude, n, field)
		out.Name = l.text(n.ChildByFieldName("path"))
		return out

	case "namespace_definition":
		out := l.container(KindNamespace, n, field)
		out.Name = l.text(n.ChildByFieldName("name"))
		out.Children = l.lowerAll(n.ChildByFieldName("body"), "")
		return out

	case "class_specifier", "struct_specifier", "union_specifier":
		if !isClassSpecifier(n) {
			return l.node(KindOther, n, field)
		}
		return l.class(n, field, "")

	case "function_definition":
		return l.function(n, field)

	case "template_declaration":
		out := l.container(KindOther, n, field)
		for _, c := range namedChildren(n) {
			if c.Type() == "template_parameter_list" {
				continue
			}
			if lowered := l.lower(c, ""); lowered != nil {
				out.Children = append(out.Children, lowered)
			}
		}
		return out

	case "declaration", "field_declaration":
		return l.declaration(n, field)

	case "type_definition":
		return l.typeDefinition(n, field)

	case "compound_statement":
		out := l.container(KindCompound, n, field)
		out.Children = l.lowerAll(n, "")
		return out

	case "for_statement":
		return l.forStatement(n, field)

	case "while_statement":
		out := l.container(KindWhile, n, field)
		if cond := l.loopCondition(n); cond != nil {
			out.Children = append(out.Children, cond)
		}
		if body := l.lower(n.ChildByFieldName("body"), FieldBody); body != nil {
			out.Children = append(out.Children, body)
		}
		return out

	case "do_statement":
		out := l.container(KindDoWhile, n, field)
		if body := l.lower(n.ChildByFieldName("body"), FieldBody); body != nil {
			out.Children = append(out.Children, body)
		}
		if cond := l.loopCondition(n); cond != nil {
			out.Children = append(out.Children, cond)
		}
		return out

	case "for_range_loop":
		return l.rangeFor(n, field)

	case "expression_statement":
		out := l.node(KindExprStmt, n, field)
		out.Children = l.lowerAll(n, "")
		return out

	case "binary_expression":
		out := l.node(KindBinary, n, field)
		out.Op = operator(n)
		out.Children = appendNonNil(out.Children,
			l.lower(n.ChildByFieldName("left"), FieldLeft),
			l.lower(n.ChildByFieldName("right"), FieldRight))
		return out

	case "assignment_expression":
		out := l.node(KindAssign, n, field)
		out.Op = operator(n)
		out.Children = appendNonNil(out.Children,
			l.lower(n.ChildByFieldName("left"), FieldLeft),
			l.lower(n.ChildByFieldName("right"), FieldRight))
		return out

	case "update_expression":
		out := l.node(KindUpdate, n, field)
		out.Op = operator(n)
		out.Children = appendNonNil(out.Children, l.lower(n.ChildByFieldName("argument"), FieldOperand))
		return out

	case "unary_expression":
		out := l.node(KindUnary, n, field)
		out.Op = operator(n)
		out.Children = appendNonNil(out.Children, l.lower(n.ChildByFieldName("argument"), FieldOperand))
		return out

	case "pointer_expression":
		kind := KindUnary
		op := operator(n)
		if op == "*" {
			kind = KindDeref
		}
		out := l.node(kind, n, field)
		out.Op = op
		out.Children = appendNonNil(out.Children, l.lower(n.ChildByFieldName("argument"), FieldOperand))
		return out

	case "call_expression":
		out := l.node(KindCall, n, field)
		fn := n.ChildByFieldName("function")
		out.Name = l.text(fn)
		out.Children = appendNonNil(out.Children, l.lower(fn, FieldFunction))
		out.Children = append(out.Children, l.lowerAll(n.ChildByFieldName("arguments"), FieldArguments)...)
		return out

	case "subscript_expression":
		out := l.node(KindSubscript, n, field)
		out.Children = appendNonNil(out.Children, l.lower(n.ChildByFieldName("argument"), FieldArgument))
		index := n.ChildByFieldName("index")
		if index == nil {
			if indices := namedChildren(n.ChildByFieldName("indices")); len(indices) > 0 {
				index = indices[0]
			}
		}
		out.Children = appendNonNil(out.Children, l.lower(index, FieldIndex))
		return out

	case "field_expression":
		out := l.node(KindMember, n, field)
		out.Op = operator(n)
		out.Children = appendNonNil(out.Children, l.lower(n.ChildByFieldName("argument"), FieldArgument))
		if f := n.ChildByFieldName("field"); f != nil {
			out.Name = l.text(f)
			member := l.node(KindIdent, f, FieldMember)
			member.Name = out.Name
			out.Children = append(out.Children, member)
		}
		return out

	case "parenthesized_expression":
		out := l.node(KindParen, n, field)
		out.Children = l.lowerAll(n, "")
		return out

	case "identifier", "field_identifier", "qualified_identifier", "namespace_identifier",
		"this", "template_function", "destructor_name", "operator_name":
		out := l.node(KindIdent, n, field)
		out.Name = out.Text
		return out

	case "number_literal", "string_literal", "char_literal", "true", "false", "null", "nullptr",
		"concatenated_string", "raw_string_literal", "user_defined_literal", "system_lib_string":
		return l.node(KindLiteral, n, field)

	case "primitive_type", "type_identifier", "sized_type_specifier", "type_descriptor",
		"template_type", "enum_specifier", "access_specifier", "type_qualifier",
		"storage_class_specifier", "template_parameter_list":
		return l.node(KindOther, n, field)
	}

	out := l.node(KindOther, n, field)
	out.Children = l.lowerAll(n, "")
	return out
}

func appendNonNil(dst []*Node, nodes ...*Node) []*Node {
	for _, n := range nodes {
		if n != nil {
			dst = append(dst, n)
		}
	}
	return dst
}

// condition unwraps C's parenthesized_expression and C++'s condition_clause
// so the condition node is the controlling expression itself.
func (l *lowerer) condition(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "condition_clause":
		if v := n.ChildByFieldName("value"); v != nil {
			return l.lower(v, FieldCondition)
		}
		children := namedChildren(n)
		if len(children) > 0 {
			last := children[len(children)-1]
			if last.Type() == "declaration" || last.Type() == "condition_declaration" {
				return l.declaration(last, FieldCondition)
			}
			return l.lower(last, FieldCondition)
		}
	case "parenthesized_expression":
		if children := namedChildren(n); len(children) == 1 {
			return l.lower(children[0], FieldCondition)
		}
	}
	return l.lower(n, FieldCondition)
}

// loopCondition lowers the condition of a while or do statement. The C++
// grammar can leave an ERROR beside condition_clause instead of inside it,
// so every header child is checked, not just the condition field.
func (l *lowerer) loopCondition(n *sitter.Node) *Node {
	body := n.ChildByFieldName("body")
	var header []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.Type() == "comment" || (body != nil && c.Equal(body)) {
			continue
		}
		if c.IsNamed() || c.IsMissing() {
			header = append(header, c)
		}
	}
	if bad := l.damaged(header, FieldCondition); bad != nil {
		return bad
	}
	return l.condition(n.ChildByFieldName("condition"))
}

// damaged returns one error node covering nodes when any of them is or
// contains a syntax error, and nil otherwise.
func (l *lowerer) damaged(nodes []*sitter.Node, field string) *Node {
	bad := false
	for _, c := range nodes {
		if c.IsMissing() || c.HasError() {
			bad = true
			break
		}
	}
	if !bad {
		return nil
	}
	first, last := nodes[0], nodes[len(nodes)-1]
	start, end := first.StartPoint(), last.EndPoint()
	return &Node{
		Kind:  KindError,
		Field: field,
		Span: Span{
			StartLine:   int(start.Row) + 1,
			StartColumn: int(start.Column) + 1,
			EndLine:     int(end.Row) + 1,
			EndColumn:   int(end.Column) + 1,
		},
		Text: NormalizeText(string(l.src[first.StartByte():last.EndByte()])),
	}
}

// forStatement reads the header positionally between the parentheses so it
// works for grammar versions with and without init/condition/update fields.
// A segment holding a syntax error lowers to a single error node.
func (l *lowerer) forStatement(n *sitter.Node, field string) *Node {
	out := l.container(KindFor, n, field)
	body := n.ChildByFieldName("body")
	var segments [3][]*sitter.Node
	segment := 0
	inHeader, headerDone := false, false
	keep := func(c *sitter.Node) {
		idx := segment
		if idx > 2 {
			idx = 2
		}
		segments[idx] = append(segments[idx], c)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch {
		case !c.IsNamed() && c.Type() == "(" && !headerDone && !inHeader:
			inHeader = true
			continue
		case !c.IsNamed() && c.Type() == ")" && inHeader:
			if c.IsMissing() {
				keep(c)
			}
			inHeader, headerDone = false, true
			continue
		case !inHeader:
			if headerDone && body == nil && c.IsNamed() && c.Type() != "comment" {
				body = c
			}
			continue
		case !c.IsNamed() && c.Type() == ";":
			if c.IsMissing() {
				keep(c)
			}
			segment++
			continue
		case c.Type() == "comment" || (!c.IsNamed() && !c.IsMissing()):
			continue
		}

		keep(c)
		if segment == 0 && c.Type() == "declaration" {
			segment = 1
		}
	}

	fields := [3]string{FieldInit, FieldCondition, FieldUpdate}
	for i, nodes := range segments {
		if bad := l.damaged(nodes, fields[i]); bad != nil {
			out.Children = append(out.Children, bad)
			continue
		}
		for _, c := range nodes {
			if i == 0 && c.Type() == "declaration" {
				out.Children = appendNonNil(out.Children, l.declaration(c, FieldInit))
				continue
			}
			out.Children = appendNonNil(out.Children, l.lower(c, fields[i]))
		}
	}
	out.Children = appendNonNil(out.Children, l.lower(body, FieldBody))
	return out
}

func (l *lowerer) rangeFor(n *sitter.Node, field string) *Node {
	out := l.container(KindRangeFor, n, field)
	typ := l.text(n.ChildByFieldName("type"))
	if decl := n.ChildByFieldName("declarator"); decl != nil {
		name, suffix := l.declaratorName(decl)
		v := l.node(KindVarDecl, decl, FieldDeclarator)
		v.Name = name
		v.Type = typ + suffix
		out.Children = append(out.Children, v)
	}
	out.Children = appendNonNil(out.Children,
		l.lower(n.ChildByFieldName("right"), FieldRange),
		l.lower(n.ChildByFieldName("body"), FieldBody))
	return out
}

func (l *lowerer) function(n *sitter.Node, field string) *Node {
	out := l.container(KindFunction, n, field)
	retType := l.text(n.ChildByFieldName("type"))

	decl := n.ChildByFieldName("declarator")
	suffix := ""
	for decl != nil && decl.Type() != "function_declarator" {
		switch decl.Type() {
		case "pointer_declarator":
			suffix += "*"
		case "reference_declarator":
			suffix += referenceMark(decl)
		case "parenthesized_declarator", "attributed_declarator":
		default:
			out.Name = l.text(decl)
			decl = nil
			continue
		}
		decl = innerDeclarator(decl)
	}
	out.Type = retType + suffix

	if decl != nil {
		out.Name = l.text(decl.ChildByFieldName("declarator"))
		params := l.container(KindOther, decl, FieldParams)
		for _, p := range namedChildren(decl.ChildByFieldName("parameters")) {
			if param := l.param(p); param != nil {
				params.Children = append(params.Children, param)
			}
		}
		out.Children = append(out.Children, params)
	}

	if body := n.ChildByFieldName("body"); body != nil {
		out.Children = appendNonNil(out.Children, l.lower(body, FieldBody))
	}
	return out
}

func (l *lowerer) param(n *sitter.Node) *Node {
	switch n.Type() {
	case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
	default:
		return nil
	}
	out := l.node(KindParam, n, "")
	name, suffix := l.declaratorName(n.ChildByFieldName("declarator"))
	out.Name = name
	out.Type = l.text(n.ChildByFieldName("type")) + suffix
	return out
}

func referenceMark(n *sitter.Node) string {
	if hasToken(n, "&&") {
		return "&&"
	}
	return "&"
}

func innerDeclarator(n *sitter.Node) *sitter.Node {
	if inner := n.ChildByFieldName("declarator"); inner != nil {
		return inner
	}
	children := namedChildren(n)
	if len(children) == 0 {
		return nil
	}
	return children[len(children)-1]
}

// declaratorName digs through pointer, reference, array and init
// declarators and returns the declared name plus the type marks that were
// peeled off on the way.
func (l *lowerer) declaratorName(n *sitter.Node) (string, string) {
	suffix := ""
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return l.text(n), suffix
		case "pointer_declarator", "abstract_pointer_declarator":
			suffix += "*"
		case "reference_declarator", "abstract_reference_declarator":
			suffix += referenceMark(n)
		case "array_declarator", "abstract_array_declarator":
			suffix += "[]"
		case "init_declarator", "parenthesized_declarator", "function_declarator", "attributed_declarator":
		default:
			return l.text(n), suffix
		}
		n = innerDeclarator(n)
	}
	return "", suffix
}

func isFunctionDeclarator(n *sitter.Node) bool {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			inner := n.ChildByFieldName("declarator")
			return inner == nil || inner.Type() != "parenthesized_declarator"
		case "pointer_declarator", "reference_declarator", "attributed_declarator":
			n = innerDeclarator(n)
		default:
			return false
		}
	}
	return false
}

func isDeclarator(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "field_identifier", "init_declarator", "pointer_declarator",
		"reference_declarator", "array_declarator", "function_declarator",
		"parenthesized_declarator", "attributed_declarator", "qualified_identifier":
		return true
	}
	return false
}

// declaration lowers a declaration or class member declaration into one
// VarDecl (or Field, inside classes) per declarator. An inline class body in
// the type position becomes a Class child ahead of the variables.
func (l *lowerer) declaration(n *sitter.Node, field string) *Node {
	out := l.node(KindDecl, n, field)
	out.Text = strings.TrimSpace(strings.TrimSuffix(out.Text, ";"))

	declKind := KindVarDecl
	if n.Type() == "field_declaration" {
		declKind = KindField
	}

	typeNode := n.ChildByFieldName("type")
	typ := l.text(typeNode)
	if isClassSpecifier(typeNode) {
		class := l.class(typeNode, "", "")
		out.Children = append(out.Children, class)
		if class.Name != "" {
			typ = class.Name
		}
	}

	for _, c := range namedChildren(n) {
		if sameNode(c, typeNode) || !isDeclarator(c) || isFunctionDeclarator(c) {
			continue
		}
		v := l.node(declKind, c, FieldDeclarator)
		name, suffix := l.declaratorName(c)
		v.Name = name
		v.Type = typ + suffix
		if c.Type() == "init_declarator" {
			if hasToken(c, "=") {
				v.Op = "="
			}
			v.Children = appendNonNil(v.Children, l.lower(c.ChildByFieldName("value"), FieldValue))
		} else if dv := n.ChildByFieldName("default_value"); dv != nil && declKind == KindField {
			v.Op = "="
			v.Children = appendNonNil(v.Children, l.lower(dv, FieldValue))
		}
		out.Children = append(out.Children, v)
	}
	return out
}

// typeDefinition keeps the class body of "typedef struct {...} Name;" and
// names an anonymous struct after the typedef.
func (l *lowerer) typeDefinition(n *sitter.Node, field string) *Node {
	out := l.node(KindOther, n, field)
	typeNode := n.ChildByFieldName("type")
	if !isClassSpecifier(typeNode) {
		return out
	}
	alias := ""
	if decl := n.ChildByFieldName("declarator"); decl != nil {
		alias, _ = l.declaratorName(decl)
	}
	out.Children = append(out.Children, l.class(typeNode, "", alias))
	return out
}

func (l *lowerer) class(n *sitter.Node, field, alias string) *Node {
	out := l.container(KindClass, n, field)
	out.Op = strings.TrimSuffix(n.Type(), "_specifier")
	out.Name = l.text(n.ChildByFieldName("name"))
	if out.Name == "" {
		out.Name = alias
	}
	for _, m := range namedChildren(n.ChildByFieldName("body")) {
		out.Children = append(out.Children, l.member(m)...)
	}
	return out
}

func (l *lowerer) member(n *sitter.Node) []*Node {
	switch n.Type() {
	case "field_declaration":
		decl := l.declaration(n, "")
		return decl.Children
	case "function_definition":
		return []*Node{l.function(n, "")}
	case "template_declaration":
		var out []*Node
		for _, c := range namedChildren(n) {
			if c.Type() != "template_parameter_list" {
				out = append(out, l.member(c)...)
			}
		}
		return out
	case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "field_declaration_list":
		var out []*Node
		for _, c := range namedChildren(n) {
			out = append(out, l.member(c)...)
		}
		return out
	}
	return nil
}
