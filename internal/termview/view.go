// Package termview renders message snapshots for a plain terminal: markdown
// prose, bordered data cards and syntax-highlighted diff windows. There is
// no TUI; callers print the returned strings.
package termview

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/youruser/contextco/internal/classify"
	"github.com/youruser/contextco/internal/diff"
	"github.com/youruser/contextco/internal/parse"
	"github.com/youruser/contextco/internal/render"
)

// maxNewFileLines caps how much of a new file is shown inline.
const maxNewFileLines = 40

// View formats snapshots.
type View struct {
	renderer *glamour.TermRenderer

	errorStyle   lipgloss.Style
	warnStyle    lipgloss.Style
	dimStyle     lipgloss.Style
	pathStyle    lipgloss.Style
	addedStyle   lipgloss.Style
	removedStyle lipgloss.Style
	cardStyle    lipgloss.Style
	plainStyle   lipgloss.Style
	labelStyle   lipgloss.Style

	palette codePalette
}

// New creates a View wrapping prose at width columns.
func New(width int) *View {
	if width <= 0 {
		width = 100
	}
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)

	return &View{
		renderer: renderer,

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		pathStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}).
			Bold(true),
		addedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		removedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}),
		cardStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}).
			Padding(0, 1),
		plainStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}).
			Padding(0, 1),
		labelStyle: lipgloss.NewStyle().Bold(true),

		palette: newCodePalette(),
	}
}

// Render formats a whole snapshot.
func (v *View) Render(s render.Snapshot) string {
	return v.Tail(s, 0)
}

// Tail formats the blocks of s from index from on, followed by the token
// footer. Callers that printed earlier blocks while streaming use it to
// finish the message.
func (v *View) Tail(s render.Snapshot, from int) string {
	if s.State == render.StateOffline {
		return v.warnStyle.Render("offline: the chat server is unreachable") + "\n"
	}

	var b strings.Builder
	for _, blk := range s.Blocks[min(from, len(s.Blocks)):] {
		b.WriteString(v.Block(blk))
		b.WriteString("\n")
	}
	if s.State == render.StateDone && s.Tokens > 0 {
		b.WriteString(v.dimStyle.Render(fmt.Sprintf("~%d tokens", s.Tokens)))
		b.WriteString("\n")
	}
	return b.String()
}

// Status formats a one-line turn state indicator.
func (v *View) Status(state render.State) string {
	switch state {
	case render.StateSending:
		return v.dimStyle.Render("sending…")
	case render.StateStreaming:
		return v.dimStyle.Render("receiving…")
	case render.StateOffline:
		return v.warnStyle.Render("offline")
	case render.StateError:
		return v.errorStyle.Render("error")
	}
	return ""
}

// Block formats one block.
func (v *View) Block(b render.Block) string {
	switch b.Type {
	case parse.TypeProse:
		return v.prose(html.UnescapeString(b.Text))
	case parse.TypePlainBlock:
		text := strings.ReplaceAll(b.Text, "<br>", "\n")
		return v.plainStyle.Render(html.UnescapeString(text))
	case parse.TypeDataCard:
		return v.card(b.Rows)
	case parse.TypeFileEdit:
		return v.fileEdit(b)
	case render.TypeError:
		return v.errorStyle.Render("error: " + html.UnescapeString(b.Text))
	}
	return b.Text
}

func (v *View) prose(md string) string {
	if v.renderer == nil {
		return md
	}
	out, err := v.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func (v *View) card(rows []classify.Row) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, v.row(row))
	}
	return v.cardStyle.Render(strings.Join(lines, "\n"))
}

func (v *View) row(row classify.Row) string {
	switch r := row.(type) {
	case classify.JiraRow:
		head := v.labelStyle.Render("Jira")
		if r.Ticket != "" {
			head += " " + v.pathStyle.Render(r.Ticket)
		}
		return fmt.Sprintf("%s  %s  %s", head, r.Summary, v.warnStyle.Render("["+r.Status+"]"))
	case classify.ConfluenceRow:
		return fmt.Sprintf("%s  %s  %s", v.labelStyle.Render("Confluence"), r.Title, v.dimStyle.Render(r.Link))
	case classify.SlackRow:
		head := v.labelStyle.Render("Slack")
		if r.Channel != "" {
			head += " #" + r.Channel
		}
		head += " " + v.pathStyle.Render(r.User)
		if r.Time != "" {
			head += " " + v.dimStyle.Render(r.Time)
		}
		return head + "\n  " + r.Message
	}
	return fmt.Sprintf("%v", row)
}

func (v *View) fileEdit(b render.Block) string {
	var sb strings.Builder
	sb.WriteString(v.pathStyle.Render(fmt.Sprintf("[%d] %s", b.ID, b.Path)))
	sb.WriteString("  ")

	d := b.Diff
	switch {
	case d == nil || d.Pending():
		sb.WriteString(v.dimStyle.Render("loading…"))
		return sb.String()
	case d.Result.NoChanges:
		msg := "no visible changes"
		if n := d.Result.Removed(); n > 0 {
			msg = fmt.Sprintf("no visible changes, %d line(s) removed", n)
		}
		sb.WriteString(v.dimStyle.Render(msg))
		return sb.String()
	case d.Status == render.DiffNewFile:
		sb.WriteString(v.addedStyle.Render(fmt.Sprintf("new file, %d lines", len(d.Result.NewLines))))
	default:
		sb.WriteString(v.addedStyle.Render(fmt.Sprintf("+%d", d.Result.Added())))
		sb.WriteString(" ")
		sb.WriteString(v.removedStyle.Render(fmt.Sprintf("-%d", d.Result.Removed())))
	}

	window := d.Result.Window
	hidden := 0
	if d.Status == render.DiffNewFile && len(window) > maxNewFileLines {
		hidden = len(window) - maxNewFileLines
		window = window[:maxNewFileLines]
	}
	for _, line := range v.windowLines(window, b.Language, b.Path, d.Result.EllipsisBefore, d.Result.EllipsisAfter) {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	if hidden > 0 {
		sb.WriteString("\n")
		sb.WriteString(v.dimStyle.Render(fmt.Sprintf("     … %d more lines", hidden)))
	}
	return sb.String()
}

func (v *View) windowLines(window []diff.Line, language, path string, before, after bool) []string {
	texts := make([]string, len(window))
	for i, l := range window {
		texts[i] = l.Text
	}
	highlighted := v.highlightLines(strings.Join(texts, "\n"), language, path, len(texts))

	ellipsis := v.dimStyle.Render("     ⋮")
	out := make([]string, 0, len(window)+2)
	if before {
		out = append(out, ellipsis)
	}
	for i, l := range window {
		marker := v.dimStyle.Render(" ")
		if l.Kind == diff.LineChanged {
			marker = v.addedStyle.Render("+")
		}
		num := v.dimStyle.Render(fmt.Sprintf("%4d", l.Index+1))
		out = append(out, num+" "+marker+" "+highlighted[i])
	}
	if after {
		out = append(out, ellipsis)
	}
	return out
}

// highlightLines tokenizes code and returns exactly want styled lines.
func (v *View) highlightLines(code, language, path string, want int) []string {
	lexer := pickLexer(language, path, code)
	lines := make([]string, 0, want)

	iter, err := lexer.Tokenise(nil, code)
	if err != nil {
		lines = append(lines, strings.Split(code, "\n")...)
	} else {
		var cur strings.Builder
		for token := iter(); token != chroma.EOF; token = iter() {
			if token.Value == "" {
				continue
			}
			style := v.palette.forToken(token.Type)
			parts := strings.Split(token.Value, "\n")
			for i, part := range parts {
				if part != "" {
					cur.WriteString(style.Render(part))
				}
				if i < len(parts)-1 {
					lines = append(lines, cur.String())
					cur.Reset()
				}
			}
		}
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
		}
	}

	for len(lines) < want {
		lines = append(lines, "")
	}
	return lines[:want]
}

func pickLexer(language, path, code string) chroma.Lexer {
	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil && path != "" {
		lexer = lexers.Match(filepath.Base(path))
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

type codePalette struct {
	plain    lipgloss.Style
	keyword  lipgloss.Style
	typeName lipgloss.Style
	function lipgloss.Style
	str      lipgloss.Style
	number   lipgloss.Style
	comment  lipgloss.Style
	operator lipgloss.Style
	errorTok lipgloss.Style
}

func newCodePalette() codePalette {
	return codePalette{
		plain:    lipgloss.NewStyle(),
		keyword:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8250DF", Dark: "#C792EA"}).Bold(true),
		typeName: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0550AE", Dark: "#82AAFF"}),
		function: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6F42C1", Dark: "#82AAFF"}),
		str:      lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0A3069", Dark: "#C3E88D"}),
		number:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#953800", Dark: "#F78C6C"}),
		comment:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#676E95"}).Italic(true),
		operator: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#89DDFF"}),
		errorTok: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}),
	}
}

func (p codePalette) forToken(t chroma.TokenType) lipgloss.Style {
	if t == chroma.Error {
		return p.errorTok
	}
	switch {
	case t.InCategory(chroma.Comment):
		return p.comment
	case t.InSubCategory(chroma.KeywordType) || t == chroma.NameClass || t == chroma.NameBuiltin:
		return p.typeName
	case t.InCategory(chroma.Keyword):
		return p.keyword
	case t.InCategory(chroma.LiteralString):
		return p.str
	case t.InCategory(chroma.LiteralNumber):
		return p.number
	case t.InCategory(chroma.Operator):
		return p.operator
	case t == chroma.NameFunction || t == chroma.NameFunctionMagic:
		return p.function
	}
	return p.plain
}
