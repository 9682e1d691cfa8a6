package render

import "github.com/youruser/contextco/internal/diff"

// DiffStatus is the lifecycle of a file edit's comparison.
type DiffStatus string

const (
	DiffLoading  DiffStatus = "loading"
	DiffResolved DiffStatus = "resolved"
	DiffNewFile  DiffStatus = "new_file"
)

// DiffState is the comparison shown for one file edit. Result is the zero
// value while loading.
type DiffState struct {
	Status DiffStatus
	Result diff.Result
}

// Pending reports whether the old content has not arrived yet.
func (d DiffState) Pending() bool {
	return d.Status == DiffLoading
}

// fileContent is what a FileReader returned for a path.
type fileContent struct {
	text   string
	exists bool
}

// diffInput identifies the inputs a DiffState was computed from.
type diffInput struct {
	old     fileContent
	content string
}

func resolveDiff(old fileContent, content string, context int) DiffState {
	if !old.exists {
		return DiffState{Status: DiffNewFile, Result: diff.ComputeContext(nil, content, context)}
	}
	text := old.text
	return DiffState{Status: DiffResolved, Result: diff.ComputeContext(&text, content, context)}
}
