package diff

// DefaultContext is the number of unchanged lines shown on each side of a
// changed span.
const DefaultContext = 2

// LineKind classifies a line inside a display window.
type LineKind int

const (
	LineContext LineKind = iota
	LineChanged
)

func (k LineKind) String() string {
	if k == LineChanged {
		return "changed"
	}
	return "context"
}

// Line is one line of a display window. Index is 0-based in the new content.
type Line struct {
	Index int
	Text  string
	Kind  LineKind
}

// Result is the outcome of comparing a file's current content with a
// proposed replacement.
//
// Spans are inclusive and 0-based: [ChangeStart, ChangeEndOld] in OldLines
// and [ChangeStart, ChangeEndNew] in NewLines. When NoChanges is set the
// window is empty. A pure deletion also reports NoChanges (nothing differs in
// the new content); Removed tells the two apart.
type Result struct {
	NewFile   bool
	NoChanges bool

	OldLines []string
	NewLines []string

	ChangeStart  int
	ChangeEndOld int
	ChangeEndNew int

	Window         []Line
	EllipsisBefore bool
	EllipsisAfter  bool
}

// Compute compares oldContent against newContent with DefaultContext lines
// of context. A nil oldContent means the file does not exist yet.
func Compute(oldContent *string, newContent string) Result {
	return ComputeContext(oldContent, newContent, DefaultContext)
}

// ComputeContext is Compute with an explicit number of context lines.
//
// The changed span is found by trimming the common prefix and the common
// suffix of the two line sequences. This is O(n) and assumes one contiguous
// edited region; reordered or disjoint edits collapse into a single span
// covering all of them.
func ComputeContext(oldContent *string, newContent string, context int) Result {
	if context < 0 {
		context = 0
	}
	newLines := SplitLines(newContent)

	if oldContent == nil {
		r := Result{
			NewFile:      true,
			NewLines:     newLines,
			ChangeEndOld: -1,
			ChangeEndNew: len(newLines) - 1,
			Window:       make([]Line, len(newLines)),
		}
		for i, text := range newLines {
			r.Window[i] = Line{Index: i, Text: text, Kind: LineChanged}
		}
		return r
	}

	oldLines := SplitLines(*oldContent)
	start, endOld, endNew := changedSpan(oldLines, newLines)

	r := Result{
		OldLines:     oldLines,
		NewLines:     newLines,
		ChangeStart:  start,
		ChangeEndOld: endOld,
		ChangeEndNew: endNew,
	}
	if start > endNew {
		r.NoChanges = true
		return r
	}

	last := len(newLines) - 1
	from := max(0, start-context)
	to := min(last, endNew+context)

	r.Window = make([]Line, 0, to-from+1)
	for i := from; i <= to; i++ {
		kind := LineContext
		if i >= start && i <= endNew {
			kind = LineChanged
		}
		r.Window = append(r.Window, Line{Index: i, Text: newLines[i], Kind: kind})
	}
	r.EllipsisBefore = from > 0
	r.EllipsisAfter = to < last
	return r
}

// changedSpan trims the common prefix and suffix of a and b. The suffix
// cursors never cross start.
func changedSpan(a, b []string) (start, endA, endB int) {
	for start < len(a) && start < len(b) && a[start] == b[start] {
		start++
	}
	endA, endB = len(a)-1, len(b)-1
	for endA >= start && endB >= start && a[endA] == b[endB] {
		endA--
		endB--
	}
	return start, endA, endB
}

// Removed returns how many old lines fall inside the changed span.
func (r Result) Removed() int {
	if r.NewFile || r.ChangeEndOld < r.ChangeStart {
		return 0
	}
	return r.ChangeEndOld - r.ChangeStart + 1
}

// Added returns how many new lines fall inside the changed span.
func (r Result) Added() int {
	if r.ChangeEndNew < r.ChangeStart {
		return 0
	}
	return r.ChangeEndNew - r.ChangeStart + 1
}

// HighlightRange returns the changed span in the new content as a 1-based
// inclusive line range. ok is false when there is nothing to highlight.
func (r Result) HighlightRange() (start, end int, ok bool) {
	if r.NoChanges || r.ChangeEndNew < r.ChangeStart {
		return 0, 0, false
	}
	return r.ChangeStart + 1, r.ChangeEndNew + 1, true
}
