package termview

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/contextco/internal/classify"
	"github.com/youruser/contextco/internal/diff"
	"github.com/youruser/contextco/internal/parse"
	"github.com/youruser/contextco/internal/render"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func plain(s string) string {
	return ansi.ReplaceAllString(s, "")
}

func resolved(old, updated string) *render.DiffState {
	return &render.DiffState{Status: render.DiffResolved, Result: diff.Compute(&old, updated)}
}

func TestRender_DataCard(t *testing.T) {
	v := New(80)
	out := plain(v.Render(render.Snapshot{
		State: render.StateDone,
		Blocks: []render.Block{{Segment: parse.Segment{
			Type: parse.TypeDataCard,
			Rows: []classify.Row{
				classify.JiraRow{Ticket: "PROJ-123", Summary: "Fix login", Status: "Open"},
				classify.SlackRow{User: "alice", Channel: "eng", Time: "10:42", Message: "deploy done"},
				classify.ConfluenceRow{Title: "Runbook", Link: "https://wiki/runbook"},
			},
		}}},
	}))

	for _, want := range []string{"PROJ-123", "Fix login", "[Open]", "#eng", "alice", "10:42", "deploy done", "Runbook", "https://wiki/runbook"} {
		assert.Contains(t, out, want)
	}
}

func TestRender_PlainBlockUnescapes(t *testing.T) {
	v := New(80)
	out := plain(v.Block(render.Block{Segment: parse.Segment{
		Type: parse.TypePlainBlock,
		Text: classify.EscapeBlock("if a < b {\n}"),
	}}))
	assert.Contains(t, out, "if a < b {")
	assert.NotContains(t, out, "<br>")
	assert.NotContains(t, out, "&lt;")
}

func TestRender_FileEdit(t *testing.T) {
	v := New(80)
	old := "l1\nl2\nl3\nl4\nl5\nl6\nl7\nl8\n"
	updated := "l1\nl2\nl3\nl4\nCHANGED\nl6\nl7\nl8\n"
	out := plain(v.Block(render.Block{
		ID:      4,
		Segment: parse.Segment{Type: parse.TypeFileEdit, Path: "notes.txt", Content: updated},
		Diff:    resolved(old, updated),
	}))

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 8, out)
	assert.Contains(t, lines[0], "[4] notes.txt")
	assert.Contains(t, lines[0], "+1 -1")
	assert.Contains(t, lines[1], "⋮")
	assert.Contains(t, lines[2], "3")
	assert.Contains(t, lines[4], "   5 + CHANGED")
	assert.Contains(t, lines[7], "⋮")
}

func TestRender_FileEditStates(t *testing.T) {
	v := New(80)
	same := "a\n"

	tests := []struct {
		name string
		diff *render.DiffState
		want string
	}{
		{"loading", &render.DiffState{Status: render.DiffLoading}, "loading"},
		{"no diff yet", nil, "loading"},
		{"no changes", resolved(same, same), "no visible changes"},
		{"deletion", resolved("a\nb\n", "a\n"), "1 line(s) removed"},
		{"new file", &render.DiffState{Status: render.DiffNewFile, Result: diff.Compute(nil, "x\ny\n")}, "new file, 2 lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := plain(v.Block(render.Block{
				ID:      1,
				Segment: parse.Segment{Type: parse.TypeFileEdit, Path: "a.txt"},
				Diff:    tt.diff,
			}))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRender_NewFileIsCapped(t *testing.T) {
	v := New(80)
	content := strings.Repeat("line\n", maxNewFileLines+5)
	out := plain(v.Block(render.Block{
		ID:      1,
		Segment: parse.Segment{Type: parse.TypeFileEdit, Path: "big.txt", Content: content},
		Diff:    &render.DiffState{Status: render.DiffNewFile, Result: diff.Compute(nil, content)},
	}))
	assert.Contains(t, out, "… 5 more lines")
}

func TestRender_ErrorAndOffline(t *testing.T) {
	v := New(80)

	out := plain(v.Render(render.Snapshot{
		State:  render.StateError,
		Blocks: []render.Block{{Segment: parse.Segment{Type: render.TypeError, Text: "Server returned status 500"}}},
	}))
	assert.Contains(t, out, "error: Server returned status 500")

	out = plain(v.Render(render.Snapshot{State: render.StateOffline}))
	assert.Contains(t, out, "offline")
}

func TestRender_ProseAndTokens(t *testing.T) {
	v := New(80)
	out := plain(v.Render(render.Snapshot{
		State:  render.StateDone,
		Tokens: 12,
		Blocks: []render.Block{{Segment: parse.Segment{Type: parse.TypeProse, Text: "Use &lt;b&gt; tags"}}},
	}))
	assert.Contains(t, out, "Use")
	assert.Contains(t, out, "tags")
	assert.Contains(t, out, "~12 tokens")
}

func TestTail(t *testing.T) {
	v := New(80)
	snap := render.Snapshot{
		State:  render.StateDone,
		Tokens: 7,
		Blocks: []render.Block{
			{Segment: parse.Segment{Type: parse.TypePlainBlock, Text: "first"}},
			{Segment: parse.Segment{Type: parse.TypePlainBlock, Text: "second"}},
		},
	}

	out := plain(v.Tail(snap, 1))
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "~7 tokens")

	out = plain(v.Tail(snap, 5))
	assert.NotContains(t, out, "second")
	assert.Contains(t, out, "~7 tokens")
}

func TestHighlightLines_LineCount(t *testing.T) {
	v := New(80)
	tests := []struct {
		name     string
		code     string
		language string
		path     string
		want     int
	}{
		{"go by language", "package main\n\nfunc main() {}", "go", "", 3},
		{"python by path", "print('hi')", "", "src/app.py", 1},
		{"trailing blank line", "a\n", "", "notes.txt", 2},
		{"unknown", "just text", "", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := v.highlightLines(tt.code, tt.language, tt.path, tt.want)
			require.Len(t, lines, tt.want)
			var stripped []string
			for _, l := range lines {
				stripped = append(stripped, plain(l))
			}
			assert.Equal(t, tt.code, strings.Join(stripped, "\n"))
		})
	}
}

func TestPickLexer(t *testing.T) {
	assert.Equal(t, "Go", pickLexer("go", "", "").Config().Name)
	assert.Equal(t, "Python", pickLexer("", "dir/app.py", "").Config().Name)
	assert.NotNil(t, pickLexer("", "", "???"))
}
