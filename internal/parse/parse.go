// Package parse splits an assistant response into prose, data cards, plain
// blocks and file edits.
//
// The whole response is parsed on every call. Callers streaming a response
// re-parse the full buffer after each chunk and discard the previous
// segments; the output depends only on the input text.
package parse

import (
	"html"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"github.com/youruser/contextco/internal/classify"
)

const fence = "```"

// fileLabel matches a "### FILE: path" line.
var fileLabel = regexp2.MustCompile("^[ \\t]*###[ \\t]*FILE:[ \\t]*(?<path>.*?)[ \\t]*\\r?\\n?$", regexp2.None)

type parser struct {
	segments  []Segment
	label     string
	hasLabel  bool
	sawFences bool
}

// Parse splits text into segments in document order.
//
// Text outside fences becomes prose, except that a "### FILE: <path>" line
// is removed and labels the next fenced block as a file edit. A label
// applies to exactly one block; when several labels precede a block the
// last one wins. A label with no following closed fence is left as prose.
// Unlabeled fenced blocks go through the classifier. An unterminated fence
// is treated as prose until its closing marker arrives.
func Parse(text string) []Segment {
	p := &parser{}
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+len(fence):], fence)
		if end < 0 {
			break
		}
		end += open + len(fence)

		p.sawFences = true
		p.prose(rest[:open], true)
		p.block(rest[open+len(fence) : end])
		rest = rest[end+len(fence):]
	}

	if !p.sawFences {
		return []Segment{{Type: TypeProse, Text: html.EscapeString(text)}}
	}
	p.prose(rest, false)
	return p.segments
}

// prose emits the text of a span outside fences. When labels is set, file
// label lines are pulled out of the text and become the pending label.
func (p *parser) prose(span string, labels bool) {
	if !labels {
		p.emitProse(span)
		return
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(span, "\n") {
		if path, ok := matchLabel(line); ok {
			p.emitProse(b.String())
			b.Reset()
			p.label, p.hasLabel = path, true
			continue
		}
		b.WriteString(line)
	}
	p.emitProse(b.String())
}

func (p *parser) emitProse(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	p.segments = append(p.segments, Segment{Type: TypeProse, Text: html.EscapeString(text)})
}

func (p *parser) block(inner string) {
	lang, body := splitLanguage(inner)

	if p.hasLabel {
		p.segments = append(p.segments, Segment{
			Type:     TypeFileEdit,
			Path:     p.label,
			Language: lang,
			Content:  body,
		})
		p.label, p.hasLabel = "", false
		return
	}

	res := classify.Classify(body)
	if res.Structured() {
		p.segments = append(p.segments, Segment{Type: TypeDataCard, Rows: res.Rows})
		return
	}
	p.segments = append(p.segments, Segment{Type: TypePlainBlock, Text: res.Plain})
}

// splitLanguage strips an optional language tag line from a fenced block.
func splitLanguage(inner string) (lang, body string) {
	nl := strings.IndexByte(inner, '\n')
	if nl < 0 {
		return "", inner
	}
	first := strings.TrimSpace(inner[:nl])
	if strings.IndexFunc(first, notLangRune) >= 0 {
		return "", inner
	}
	return first, inner[nl+1:]
}

func notLangRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("_+#.-", r)
}

func matchLabel(line string) (string, bool) {
	m, err := fileLabel.FindStringMatch(line)
	if err != nil || m == nil {
		return "", false
	}
	// Models often quote or emphasize the path.
	path := strings.Trim(m.GroupByName("path").String(), " \t`'\"*")
	if path == "" {
		return "", false
	}
	return path, true
}
