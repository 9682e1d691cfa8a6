package parse

import (
	"html"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youruser/contextco/internal/classify"
)

const bt = "```"

func TestParse_NoFences(t *testing.T) {
	inputs := []string{
		"",
		"   \n",
		"Hello <world> & friends",
		"### FILE: main.go\nno fence follows",
		"unterminated " + bt + "go\nfunc main() {}",
	}
	for _, in := range inputs {
		segs := Parse(in)
		require.Len(t, segs, 1, "input %q", in)
		assert.Equal(t, Segment{Type: TypeProse, Text: html.EscapeString(in)}, segs[0])
	}
}

func TestParse_FileEdit(t *testing.T) {
	in := "Here is the fix:\n### FILE: src/app.py\n" + bt + "python\nprint('hi')\n" + bt + "\nDone."
	segs := Parse(in)

	require.Len(t, segs, 3)
	assert.Equal(t, Segment{Type: TypeProse, Text: "Here is the fix:\n"}, segs[0])
	assert.Equal(t, Segment{Type: TypeFileEdit, Path: "src/app.py", Language: "python", Content: "print('hi')\n"}, segs[1])
	assert.Equal(t, Segment{Type: TypeProse, Text: "\nDone."}, segs[2])
}

func TestParse_LabelIsOneShot(t *testing.T) {
	in := "### FILE: a.go\n" +
		bt + "go\npackage a\n" + bt + "\n" +
		bt + "\nSummary: Fix login | Status: Open\n" + bt
	segs := Parse(in)

	require.Len(t, segs, 2)
	assert.Equal(t, TypeFileEdit, segs[0].Type)
	assert.Equal(t, "a.go", segs[0].Path)
	assert.Equal(t, TypeDataCard, segs[1].Type)
	assert.Equal(t, []classify.Row{classify.JiraRow{Summary: "Fix login", Status: "Open"}}, segs[1].Rows)
}

func TestParse_LastLabelWins(t *testing.T) {
	in := "### FILE: first.go\nactually, this one:\n### FILE: second.go\n" + bt + "go\nx\n" + bt
	segs := Parse(in)

	require.Len(t, segs, 2)
	assert.Equal(t, Segment{Type: TypeProse, Text: "actually, this one:\n"}, segs[0])
	assert.Equal(t, "second.go", segs[1].Path)
}

func TestParse_LabelVariants(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"### FILE: main.go", "main.go"},
		{"###FILE:main.go", "main.go"},
		{"  ### FILE:   dir/with space.txt  ", "dir/with space.txt"},
		{"### FILE: `quoted.go`", "quoted.go"},
		{"### FILE: **bold.go**", "bold.go"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			segs := Parse(tt.line + "\n" + bt + "\nbody\n" + bt)
			require.Len(t, segs, 1)
			assert.Equal(t, TypeFileEdit, segs[0].Type)
			assert.Equal(t, tt.want, segs[0].Path)
		})
	}
}

func TestParse_PlainBlock(t *testing.T) {
	segs := Parse(bt + "go\nif a < b {\n}\n" + bt)

	require.Len(t, segs, 1)
	assert.Equal(t, Segment{Type: TypePlainBlock, Text: "if a &lt; b {<br>}<br>"}, segs[0])
}

func TestParse_LanguageTag(t *testing.T) {
	t.Run("no tag", func(t *testing.T) {
		segs := Parse("### FILE: x.txt\n" + bt + "\nline one\n" + bt)
		require.Len(t, segs, 1)
		assert.Equal(t, "", segs[0].Language)
		assert.Equal(t, "line one\n", segs[0].Content)
	})

	t.Run("first line is content", func(t *testing.T) {
		segs := Parse("### FILE: x.txt\n" + bt + "hello world\nmore\n" + bt)
		require.Len(t, segs, 1)
		assert.Equal(t, "hello world\nmore\n", segs[0].Content)
	})

	t.Run("single line block", func(t *testing.T) {
		segs := Parse(bt + "inline" + bt)
		require.Len(t, segs, 1)
		assert.Equal(t, Segment{Type: TypePlainBlock, Text: "inline"}, segs[0])
	})
}

func TestParse_StreamingPrefixes(t *testing.T) {
	full := "Intro\n### FILE: a.go\n" + bt + "go\npackage a\n" + bt + "\nOutro"

	// While the fence is still open the label stays visible as prose.
	partial := full[:len("Intro\n### FILE: a.go\n"+bt+"go\npack")]
	segs := Parse(partial)
	require.Len(t, segs, 1)
	assert.Equal(t, TypeProse, segs[0].Type)

	segs = Parse(full)
	require.Len(t, segs, 3)
	assert.Equal(t, TypeFileEdit, segs[1].Type)
}

func TestParse_Deterministic(t *testing.T) {
	in := "a\n### FILE: x\n" + bt + "\n1\n" + bt + "\n" + bt + "\nUser: u | Msg: m\n" + bt + "\nz"
	assert.Equal(t, Parse(in), Parse(in))
}

func TestParse_WhitespaceBetweenFencesDropped(t *testing.T) {
	segs := Parse(bt + "\na\n" + bt + "\n\n" + bt + "\nb\n" + bt)
	require.Len(t, segs, 2)
	assert.Equal(t, TypePlainBlock, segs[0].Type)
	assert.Equal(t, TypePlainBlock, segs[1].Type)
}
