package render

import "context"

// Transport delivers one user message and streams the response. It must
// return an error wrapping transport.ErrUnreachable when no response was
// received, and a *transport.StatusError for a non-success status.
type Transport interface {
	Send(ctx context.Context, text string, onChunk func(string)) error
}

// FileReader returns the current content of a file named by an edit. ok is
// false when the file does not exist. Errors are treated like a missing file.
type FileReader interface {
	Read(ctx context.Context, path string) (content string, ok bool, err error)
}

// Highlighter receives a 1-based inclusive line range to mark in an editor.
type Highlighter interface {
	Highlight(path string, start, end int)
}

// Applier writes a proposed replacement to disk.
type Applier interface {
	Apply(path, content string) error
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHighlighter sets the editor highlight sink.
func WithHighlighter(h Highlighter) Option {
	return func(r *Renderer) { r.highlighter = h }
}

// WithApplier sets the sink used by Apply.
func WithApplier(a Applier) Option {
	return func(r *Renderer) { r.applier = a }
}

// WithListener registers fn to receive a snapshot after every change.
// fn runs with the renderer locked and must not call back into it.
func WithListener(fn func(Snapshot)) Option {
	return func(r *Renderer) { r.listener = fn }
}

// WithContextLines sets the number of unchanged lines around a change.
func WithContextLines(n int) Option {
	return func(r *Renderer) {
		if n >= 0 {
			r.contextLines = n
		}
	}
}

// WithAutoHighlight controls whether a resolved diff is sent to the
// highlighter without being asked.
func WithAutoHighlight(on bool) Option {
	return func(r *Renderer) { r.autoHighlight = on }
}
