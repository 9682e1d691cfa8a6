package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field extracts the value stored under key in a pipe-delimited line such as
// "Summary: Fix login | Status: Open".
//
// Each segment is trimmed and stripped of markdown emphasis, including
// single-character markers wrapping the key, before its prefix is compared with key, ignoring case. The key must end at a word
// boundary ("user" does not match "username"). The returned value is the
// rest of the segment after the key and an optional colon. ok is false when
// no segment carries the key.
func Field(line, key string) (value string, ok bool) {
	if key == "" {
		return "", false
	}
	for _, seg := range strings.Split(line, "|") {
		seg = stripEmphasis(seg)
		if len(seg) < len(key) || !strings.EqualFold(seg[:len(key)], key) {
			continue
		}
		rest := seg[len(key):]
		if r, _ := utf8.DecodeRuneInString(rest); rest != "" && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		// Closing markers touch the key ("*Status*: x") or the colon ("*Status:* x").
		rest = strings.TrimSpace(strings.TrimLeft(rest, emphasisMarkers))
		if after, found := strings.CutPrefix(rest, ":"); found {
			rest = closingMarkers(after)
		}
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// FieldOr returns the value of the first key present in line, or def.
func FieldOr(line, def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := Field(line, key); ok {
			return v
		}
	}
	return def
}

// closingMarkers drops a marker run at the start of s when it ends the
// emphasis rather than opening emphasis in the value.
func closingMarkers(s string) string {
	t := strings.TrimLeft(s, emphasisMarkers)
	if len(t) == len(s) || (t != "" && t[0] != ' ' && t[0] != '\t') {
		return s
	}
	return t
}

const emphasisMarkers = "*_`"

func stripEmphasis(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.Trim(s, emphasisMarkers)
	return strings.TrimSpace(s)
}
