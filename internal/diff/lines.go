package diff

import "strings"

// SplitLines splits file content into lines. Handles both LF and CRLF.
// A trailing newline does not produce an extra empty line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	// Normalize CRLF to LF
	content = strings.ReplaceAll(content, "\r\n", "\n")
	// Remove trailing newline to avoid ghost empty line
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}
