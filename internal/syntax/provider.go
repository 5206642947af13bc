package syntax

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrParseFailure is returned when no usable tree can be built for a file.
	ErrParseFailure = errors.New("parse failure")
	// ErrUnsupportedLanguage is returned for files that are neither C nor C++.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Provider turns one translation unit into a lowered syntax tree.
type Provider interface {
	Parse(ctx context.Context, path string, flags []string) (*Node, error)
}

// Language is the source language a file is parsed as.
type Language string

const (
	LanguageC   Language = "c"
	LanguageCPP Language = "cpp"
)

// DetectLanguage picks the grammar for path. A "-x c++" or "-xc++" flag
// forces C++, which matters for headers.
func DetectLanguage(path string, flags []string) (Language, error) {
	for i, f := range flags {
		if f == "-xc++" || (f == "-x" && i+1 < len(flags) && flags[i+1] == "c++") {
			return LanguageCPP, nil
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return LanguageC, nil
	case ".cpp", ".cc", ".cxx", ".c++", ".h", ".hpp", ".hxx", ".hh", ".h++":
		return LanguageCPP, nil
	default:
		return "", ErrUnsupportedLanguage
	}
}

// LanguageName is the human readable language label stored in file info.
func LanguageName(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return "C"
	case ".h":
		return "C/C++ Header"
	case ".hpp", ".hxx", ".hh", ".h++":
		return "C++ Header"
	default:
		return "C++"
	}
}
