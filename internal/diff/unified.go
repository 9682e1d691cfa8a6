package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified renders a full unified diff between the current content of path
// and its proposed replacement. A nil oldContent diffs against /dev/null.
func Unified(path string, oldContent *string, newContent string) (string, error) {
	fromFile := "/dev/null"
	var a []string
	if oldContent != nil {
		fromFile = "a/" + path
		a = splitKeepEOL(*oldContent)
	}
	ud := difflib.UnifiedDiff{
		A:        a,
		B:        splitKeepEOL(newContent),
		FromFile: fromFile,
		ToFile:   "b/" + path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// splitKeepEOL splits s into newline-terminated lines. Unlike
// difflib.SplitLines it adds no empty line after a trailing newline.
func splitKeepEOL(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
