// Package syntaxtest builds syntax trees by hand so the loop engine can be
// tested without a parser.
package syntaxtest

import (
	"strings"

	"loopscan/internal/syntax"
)

func with(n *syntax.Node, field string) *syntax.Node {
	if n != nil {
		n.Field = field
	}
	return n
}

func texts(nodes []*syntax.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Text)
	}
	return out
}

func Ident(name string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindIdent, Name: name, Text: name}
}

func Lit(text string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindLiteral, Text: text}
}

func Paren(inner *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindParen, Text: "(" + inner.Text + ")", Children: []*syntax.Node{inner}}
}

func Bin(op string, left, right *syntax.Node) *syntax.Node {
	return &syntax.Node{
		Kind:     syntax.KindBinary,
		Op:       op,
		Text:     left.Text + " " + op + " " + right.Text,
		Children: []*syntax.Node{with(left, syntax.FieldLeft), with(right, syntax.FieldRight)},
	}
}

func Assign(op string, left, right *syntax.Node) *syntax.Node {
	return &syntax.Node{
		Kind:     syntax.KindAssign,
		Op:       op,
		Text:     left.Text + " " + op + " " + right.Text,
		Children: []*syntax.Node{with(left, syntax.FieldLeft), with(right, syntax.FieldRight)},
	}
}

func Inc(operand *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindUpdate, Op: "++", Text: operand.Text + "++",
		Children: []*syntax.Node{with(operand, syntax.FieldOperand)}}
}

func Dec(operand *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindUpdate, Op: "--", Text: operand.Text + "--",
		Children: []*syntax.Node{with(operand, syntax.FieldOperand)}}
}

func Unary(op string, operand *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindUnary, Op: op, Text: op + operand.Text,
		Children: []*syntax.Node{with(operand, syntax.FieldOperand)}}
}

func Deref(operand *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindDeref, Op: "*", Text: "*" + operand.Text,
		Children: []*syntax.Node{with(operand, syntax.FieldOperand)}}
}

// Call builds a call whose callee is parsed from a dotted or arrowed spelling,
// so Call("obj.run") produces a member-expression callee.
func Call(callee string, args ...*syntax.Node) *syntax.Node {
	var fn *syntax.Node
	switch {
	case strings.Contains(callee, "->"):
		i := strings.LastIndex(callee, "->")
		fn = Member(Ident(callee[:i]), "->", callee[i+2:])
	case strings.Contains(callee, "."):
		i := strings.LastIndex(callee, ".")
		fn = Member(Ident(callee[:i]), ".", callee[i+1:])
	default:
		fn = Ident(callee)
	}
	n := &syntax.Node{
		Kind:     syntax.KindCall,
		Name:     callee,
		Text:     callee + "(" + strings.Join(texts(args), ", ") + ")",
		Children: []*syntax.Node{with(fn, syntax.FieldFunction)},
	}
	for _, a := range args {
		n.Children = append(n.Children, with(a, syntax.FieldArguments))
	}
	return n
}

// MethodCall builds receiver.method(args...) for receivers that are not plain
// names, such as the result of another call.
func MethodCall(receiver *syntax.Node, method string, args ...*syntax.Node) *syntax.Node {
	fn := Member(receiver, ".", method)
	n := &syntax.Node{
		Kind:     syntax.KindCall,
		Name:     method,
		Text:     fn.Text + "(" + strings.Join(texts(args), ", ") + ")",
		Children: []*syntax.Node{with(fn, syntax.FieldFunction)},
	}
	for _, a := range args {
		n.Children = append(n.Children, with(a, syntax.FieldArguments))
	}
	return n
}

// Index builds base[i0][i1]... as nested subscripts.
func Index(base *syntax.Node, indices ...*syntax.Node) *syntax.Node {
	n := base
	for _, idx := range indices {
		n = &syntax.Node{
			Kind:     syntax.KindSubscript,
			Text:     n.Text + "[" + idx.Text + "]",
			Children: []*syntax.Node{with(n, syntax.FieldArgument), with(idx, syntax.FieldIndex)},
		}
	}
	return n
}

func Member(base *syntax.Node, op, field string) *syntax.Node {
	f := Ident(field)
	f.Field = syntax.FieldMember
	return &syntax.Node{
		Kind:     syntax.KindMember,
		Op:       op,
		Name:     field,
		Text:     base.Text + op + field,
		Children: []*syntax.Node{with(base, syntax.FieldArgument), f},
	}
}

func Expr(e *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindExprStmt, Text: e.Text + ";", Children: []*syntax.Node{e}}
}

// Decl declares one variable, with "=" initialization when value is set.
func Decl(typ, name string, value *syntax.Node) *syntax.Node {
	v := &syntax.Node{Kind: syntax.KindVarDecl, Field: syntax.FieldDeclarator, Name: name, Type: typ, Text: name}
	text := typ + " " + name
	if value != nil {
		v.Op = "="
		v.Text = name + " = " + value.Text
		v.Children = []*syntax.Node{with(value, syntax.FieldValue)}
		text += " = " + value.Text
	}
	return &syntax.Node{Kind: syntax.KindDecl, Text: text, Children: []*syntax.Node{v}}
}

// Construct declares a variable initialized with constructor arguments.
func Construct(typ, name string, args ...*syntax.Node) *syntax.Node {
	list := &syntax.Node{Kind: syntax.KindOther, Field: syntax.FieldValue, Text: "(" + strings.Join(texts(args), ", ") + ")"}
	list.Children = args
	v := &syntax.Node{Kind: syntax.KindVarDecl, Field: syntax.FieldDeclarator, Name: name, Type: typ,
		Text: name + list.Text, Children: []*syntax.Node{list}}
	return &syntax.Node{Kind: syntax.KindDecl, Text: typ + " " + v.Text, Children: []*syntax.Node{v}}
}

func Block(stmts ...*syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindCompound, Children: stmts}
}

// For builds a for statement. Any of init, cond and update may be nil.
func For(init, cond, update, body *syntax.Node) *syntax.Node {
	n := &syntax.Node{Kind: syntax.KindFor}
	if init != nil {
		n.Children = append(n.Children, with(init, syntax.FieldInit))
	}
	if cond != nil {
		n.Children = append(n.Children, with(cond, syntax.FieldCondition))
	}
	if update != nil {
		n.Children = append(n.Children, with(update, syntax.FieldUpdate))
	}
	n.Children = append(n.Children, with(body, syntax.FieldBody))
	return n
}

func While(cond, body *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindWhile,
		Children: []*syntax.Node{with(cond, syntax.FieldCondition), with(body, syntax.FieldBody)}}
}

func DoWhile(body, cond *syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindDoWhile,
		Children: []*syntax.Node{with(body, syntax.FieldBody), with(cond, syntax.FieldCondition)}}
}

func RangeFor(typ, name string, rng, body *syntax.Node) *syntax.Node {
	v := &syntax.Node{Kind: syntax.KindVarDecl, Field: syntax.FieldDeclarator, Name: name, Type: typ, Text: name}
	return &syntax.Node{Kind: syntax.KindRangeFor,
		Children: []*syntax.Node{v, with(rng, syntax.FieldRange), with(body, syntax.FieldBody)}}
}

func Param(typ, name string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindParam, Name: name, Type: typ, Text: typ + " " + name}
}

func Func(name, ret string, params []*syntax.Node, body *syntax.Node) *syntax.Node {
	list := &syntax.Node{Kind: syntax.KindOther, Field: syntax.FieldParams, Children: params}
	return &syntax.Node{Kind: syntax.KindFunction, Name: name, Type: ret,
		Children: []*syntax.Node{list, with(body, syntax.FieldBody)}}
}

func Field(typ, name string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindField, Name: name, Type: typ, Text: name}
}

func Class(name string, members ...*syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindClass, Op: "class", Name: name, Children: members}
}

func Namespace(name string, decls ...*syntax.Node) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindNamespace, Name: name, Children: decls}
}

func Include(path string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindInclude, Name: path, Text: "#include " + path}
}

func Error(text string) *syntax.Node {
	return &syntax.Node{Kind: syntax.KindError, Text: text}
}

// Unit wraps declarations in a translation unit and numbers every node that
// has no span yet, one line per node in source order.
func Unit(decls ...*syntax.Node) *syntax.Node {
	root := &syntax.Node{Kind: syntax.KindTranslationUnit, Children: decls}
	Number(root)
	return root
}

func Number(root *syntax.Node) {
	line := 0
	syntax.Walk(root, func(n *syntax.Node) bool {
		line++
		if n.Span == (syntax.Span{}) {
			n.Span = syntax.Span{StartLine: line, StartColumn: 1, EndLine: line, EndColumn: 1 + len(n.Text)}
		}
		return true
	})
}

// At pins n to a fixed position.
func At(n *syntax.Node, line, column int) *syntax.Node {
	n.Span = syntax.Span{StartLine: line, StartColumn: column, EndLine: line, EndColumn: column + len(n.Text)}
	return n
}
