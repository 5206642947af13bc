// Package syntax defines the parser-independent tree the loop engine consumes.
package syntax

import "strings"

// Kind identifies the syntactic category of a Node.
type Kind int

const (
	KindOther Kind = iota
	KindTranslationUnit
	KindInclude
	KindNamespace
	KindClass
	KindField
	KindFunction
	KindParam
	KindCompound
	KindFor
	KindWhile
	KindDoWhile
	KindRangeFor
	KindDecl
	KindVarDecl
	KindExprStmt
	KindBinary
	KindUnary
	KindUpdate
	KindAssign
	KindCall
	KindSubscript
	KindMember
	KindDeref
	KindIdent
	KindLiteral
	KindParen
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTranslationUnit:
		return "translation_unit"
	case KindInclude:
		return "include"
	case KindNamespace:
		return "namespace"
	case KindClass:
		return "class"
	case KindField:
		return "field"
	case KindFunction:
		return "function"
	case KindParam:
		return "param"
	case KindCompound:
		return "compound"
	case KindFor:
		return "for"
	case KindWhile:
		return "while"
	case KindDoWhile:
		return "do_while"
	case KindRangeFor:
		return "range_for"
	case KindDecl:
		return "decl"
	case KindVarDecl:
		return "var_decl"
	case KindExprStmt:
		return "expr_stmt"
	case KindBinary:
		return "binary"
	case KindUnary:
		return "unary"
	case KindUpdate:
		return "update"
	case KindAssign:
		return "assign"
	case KindCall:
		return "call"
	case KindSubscript:
		return "subscript"
	case KindMember:
		return "member"
	case KindDeref:
		return "deref"
	case KindIdent:
		return "ident"
	case KindLiteral:
		return "literal"
	case KindParen:
		return "paren"
	case KindError:
		return "error"
	default:
		return "other"
	}
}

// IsLoop reports whether k is one of the four loop statement kinds.
func (k Kind) IsLoop() bool {
	switch k {
	case KindFor, KindWhile, KindDoWhile, KindRangeFor:
		return true
	}
	return false
}

// Field roles a child can play inside its parent.
const (
	FieldInit       = "init"
	FieldCondition  = "condition"
	FieldUpdate     = "update"
	FieldBody       = "body"
	FieldDeclarator = "declarator"
	FieldRange      = "range"
	FieldFunction   = "function"
	FieldArgument   = "argument"
	FieldArguments  = "arguments"
	FieldIndex      = "index"
	FieldMember     = "field"
	FieldLeft       = "left"
	FieldRight      = "right"
	FieldValue      = "value"
	FieldOperand    = "operand"
	FieldParams     = "parameters"
)

// Span is a 1-based source range.
type Span struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

// Node is one element of a lowered syntax tree. Which of Name, Type and Op
// are populated depends on Kind.
type Node struct {
	Kind  Kind
	Field string
	Span  Span
	Text  string

	// Op holds the operator spelling for operator, member and declaration nodes.
	Op string
	// Name holds the declared or referenced name.
	Name string
	// Type holds the declared type text of params, fields and variables, and
	// the return type of functions.
	Type string

	Children []*Node
}

// Child returns the first child tagged with the given field role, or nil.
func (n *Node) Child(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenOf returns every child tagged with the given field role.
func (n *Node) ChildrenOf(field string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants depth first in source order. Returning
// false from fn skips the children of the current node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// ContainsError reports whether n or any descendant is an error-recovery node.
func ContainsError(n *Node) bool {
	found := false
	Walk(n, func(c *Node) bool {
		if c.Kind == KindError {
			found = true
		}
		return !found
	})
	return found
}

// Unparen strips any number of enclosing parentheses.
func Unparen(n *Node) *Node {
	for n != nil && n.Kind == KindParen && len(n.Children) > 0 {
		n = n.Children[0]
	}
	return n
}

// Identifiers returns the distinct identifier names under n in first-seen
// order. Member field names are not included.
func Identifiers(n *Node) []string {
	seen := make(map[string]bool)
	var names []string
	Walk(n, func(c *Node) bool {
		if c.Kind == KindIdent && c.Field != FieldMember && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
		return true
	})
	return names
}

// NormalizeText collapses whitespace runs so multi-line expressions render on
// one line.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
