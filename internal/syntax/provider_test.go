package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path  string
		flags []string
		want  Language
	}{
		{"main.c", nil, LanguageC},
		{"MAIN.C", nil, LanguageC},
		{"matrix.cpp", nil, LanguageCPP},
		{"matrix.cc", nil, LanguageCPP},
		{"matrix.cxx", nil, LanguageCPP},
		{"matrix.h", nil, LanguageCPP},
		{"matrix.hpp", nil, LanguageCPP},
		{"legacy.c", []string{"-std=c++17", "-x", "c++"}, LanguageCPP},
		{"legacy.c", []string{"-xc++"}, LanguageCPP},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectLanguage(tt.path, tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectLanguage("notes.txt", nil)
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "C", LanguageName("a.c"))
	assert.Equal(t, "C++", LanguageName("a.cpp"))
	assert.Equal(t, "C/C++ Header", LanguageName("a.h"))
	assert.Equal(t, "C++ Header", LanguageName("a.hpp"))
}

func TestNodeHelpers(t *testing.T) {
	ident := &Node{Kind: KindIdent, Name: "i", Text: "i", Field: FieldLeft}
	member := &Node{Kind: KindIdent, Name: "size", Text: "size", Field: FieldMember}
	lit := &Node{Kind: KindLiteral, Text: "10", Field: FieldRight}
	bin := &Node{Kind: KindBinary, Op: "<", Text: "i < 10", Children: []*Node{ident, lit}}
	paren := &Node{Kind: KindParen, Text: "((i < 10))", Children: []*Node{
		{Kind: KindParen, Text: "(i < 10)", Children: []*Node{bin}},
	}}

	assert.Same(t, ident, bin.Child(FieldLeft))
	assert.Nil(t, bin.Child(FieldBody))
	assert.Same(t, bin, Unparen(paren))
	assert.False(t, ContainsError(paren))

	withMember := &Node{Kind: KindMember, Children: []*Node{ident, member}}
	assert.Equal(t, []string{"i"}, Identifiers(withMember))

	broken := &Node{Kind: KindCompound, Children: []*Node{{Kind: KindError}}}
	assert.True(t, ContainsError(broken))

	assert.Equal(t, "i < n && j", NormalizeText("i <\n\t n &&   j"))
	assert.True(t, KindRangeFor.IsLoop())
	assert.False(t, KindCompound.IsLoop())
	assert.Equal(t, "do_while", KindDoWhile.String())
}
