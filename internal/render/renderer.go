// Package render turns a streamed assistant response into typed segments,
// fetching the current content of every file the response proposes to edit
// and attaching a line diff once it arrives.
package render

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/youruser/contextco/internal/diff"
	"github.com/youruser/contextco/internal/logging"
	"github.com/youruser/contextco/internal/parse"
	"github.com/youruser/contextco/internal/tokens"
	"github.com/youruser/contextco/internal/transport"
)

// State is the lifecycle of the current turn.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateDone      State = "done"
	StateError     State = "error"
	StateOffline   State = "offline"
)

// Active reports whether a turn in this state is still receiving.
func (s State) Active() bool {
	return s == StateSending || s == StateStreaming
}

// TypeError is the segment type of the turn-level error message.
const TypeError = "error"

var (
	ErrTurnInProgress = errors.New("another request is already in progress")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownBlock   = errors.New("unknown block")
	ErrDiffPending    = errors.New("file content not loaded yet")
	ErrNoChanges      = errors.New("no visible changes")
	ErrNoApplier      = errors.New("no apply target configured")
	ErrNoHighlighter  = errors.New("no highlight target configured")
)

var log = logging.Get()

// Block is a segment as shown to the user. File edits carry a block id and
// their diff state.
type Block struct {
	ID int
	parse.Segment
	Diff *DiffState
}

// Snapshot is the UI-facing view of the current turn.
type Snapshot struct {
	TurnID string
	State  State
	Blocks []Block
	Error  string // set in StateError
	Tokens int    // estimated response tokens, set in StateDone
	// EditTokens is the part of Tokens spent on proposed file contents.
	EditTokens int
}

// editKey identifies a file edit across re-parses of a growing buffer: its
// position among the file edits of the turn plus its path.
type editKey struct {
	ordinal int
	path    string
}

type turn struct {
	id       string
	state    State
	buf      strings.Builder
	segments []parse.Segment
	ids      []int // block id per segment, 0 for non-edits

	keys      map[editKey]int
	diffs     map[int]DiffState
	inputs    map[int]diffInput
	requested map[string]bool
	files     map[string]fileContent

	errMsg string
	usage  tokens.Usage
	cancel context.CancelFunc
}

func newTurn(cancel context.CancelFunc) *turn {
	return &turn{
		id:        uuid.NewString(),
		state:     StateSending,
		keys:      make(map[editKey]int),
		diffs:     make(map[int]DiffState),
		inputs:    make(map[int]diffInput),
		requested: make(map[string]bool),
		files:     make(map[string]fileContent),
		cancel:    cancel,
	}
}

// edit returns the file edit with the given block id.
func (t *turn) edit(id int) (parse.Segment, bool) {
	if id <= 0 {
		return parse.Segment{}, false
	}
	for i, seg := range t.segments {
		if t.ids[i] == id {
			return seg, true
		}
	}
	return parse.Segment{}, false
}

// Renderer owns one conversation view. At most one turn is in flight; a
// finished turn stays visible until the next Send.
type Renderer struct {
	transport   Transport
	files       FileReader
	highlighter Highlighter
	applier     Applier
	listener    func(Snapshot)

	contextLines  int
	autoHighlight bool

	mu      sync.Mutex
	turn    *turn
	nextID  int
	fetches errgroup.Group
}

// New creates a renderer reading responses from tr and old file content
// from files.
func New(tr Transport, files FileReader, opts ...Option) *Renderer {
	r := &Renderer{
		transport:     tr,
		files:         files,
		contextLines:  diff.DefaultContext,
		autoHighlight: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send starts a turn for text and blocks until the response ends. The
// returned error is the transport's; the outcome is also reflected in the
// snapshot state (Done, Error or Offline).
func (r *Renderer) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.turn != nil && r.turn.state.Active() {
		r.mu.Unlock()
		return ErrTurnInProgress
	}
	t := newTurn(cancel)
	r.turn = t
	r.emitLocked()
	r.mu.Unlock()

	ctx = logging.WithTurn(ctx, t.id)
	log.Info("Turn %s: sending message (%d bytes)", t.id, len(text))

	err := r.transport.Send(ctx, text, func(chunk string) {
		r.appendChunk(ctx, t, chunk)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked(t, err)
	r.emitLocked()
	return err
}

func (r *Renderer) appendChunk(ctx context.Context, t *turn, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn != t || !t.state.Active() || chunk == "" {
		return
	}
	t.state = StateStreaming
	t.buf.WriteString(chunk)
	t.segments = parse.Parse(t.buf.String())
	r.reconcileLocked(ctx, t)
	r.emitLocked()
}

// reconcileLocked assigns block ids to the file edits of a fresh parse,
// issues one fetch per new path and refreshes diffs whose inputs changed.
func (r *Renderer) reconcileLocked(ctx context.Context, t *turn) {
	ids := make([]int, len(t.segments))
	ordinal := 0
	for i, seg := range t.segments {
		if !seg.IsFileEdit() {
			continue
		}
		key := editKey{ordinal: ordinal, path: seg.Path}
		ordinal++

		id, ok := t.keys[key]
		if !ok {
			r.nextID++
			id = r.nextID
			t.keys[key] = id
		}
		ids[i] = id

		if fc, ok := t.files[seg.Path]; ok {
			r.resolveLocked(t, id, seg, fc)
			continue
		}
		if _, ok := t.diffs[id]; !ok {
			t.diffs[id] = DiffState{Status: DiffLoading}
		}
		if !t.requested[seg.Path] {
			t.requested[seg.Path] = true
			r.fetch(ctx, t.id, id, seg.Path)
		}
	}
	t.ids = ids
}

func (r *Renderer) fetch(ctx context.Context, turnID string, blockID int, path string) {
	// Fetches outlive the stream that triggered them.
	fetchCtx := context.WithoutCancel(ctx)
	log.Fetch(fetchCtx, logging.FetchStart, path, blockID)

	r.fetches.Go(func() error {
		content, ok, err := r.files.Read(fetchCtx, path)
		if err != nil {
			log.Fetch(fetchCtx, logging.FetchFailed, path, blockID)
			log.Debug("Read %s: %v", path, err)
			content, ok = "", false
		}
		r.fetchDone(fetchCtx, turnID, blockID, path, fileContent{text: content, exists: ok})
		return nil
	})
}

func (r *Renderer) fetchDone(ctx context.Context, turnID string, blockID int, path string, fc fileContent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.turn
	if t == nil || t.id != turnID {
		log.Fetch(ctx, logging.FetchStale, path, blockID)
		return
	}
	if _, ok := t.edit(blockID); !ok {
		log.Fetch(ctx, logging.FetchStale, path, blockID)
		return
	}

	t.files[path] = fc
	r.refreshPathLocked(t, path)
	log.Fetch(ctx, logging.FetchResolved, path, blockID)
	r.emitLocked()
}

func (r *Renderer) refreshPathLocked(t *turn, path string) {
	fc := t.files[path]
	for i, seg := range t.segments {
		if seg.IsFileEdit() && seg.Path == path {
			r.resolveLocked(t, t.ids[i], seg, fc)
		}
	}
}

func (r *Renderer) resolveLocked(t *turn, id int, seg parse.Segment, fc fileContent) {
	in := diffInput{old: fc, content: seg.Content}
	prev, seen := t.diffs[id]
	if seen && !prev.Pending() && t.inputs[id] == in {
		return
	}

	st := resolveDiff(fc, seg.Content, r.contextLines)
	t.diffs[id] = st
	t.inputs[id] = in

	firstResolution := !seen || prev.Pending()
	if firstResolution && r.autoHighlight && r.highlighter != nil {
		if start, end, ok := st.Result.HighlightRange(); ok {
			r.highlighter.Highlight(seg.Path, start, end)
		}
	}
}

func (r *Renderer) finishLocked(t *turn, err error) {
	if r.turn != t {
		return
	}
	t.cancel = nil

	var statusErr *transport.StatusError
	switch {
	case err == nil:
		t.state = StateDone
		var edits []string
		for _, seg := range t.segments {
			if seg.IsFileEdit() {
				edits = append(edits, seg.Content)
			}
		}
		t.usage = tokens.Measure(t.buf.String(), edits)
	case errors.Is(err, transport.ErrUnreachable):
		t.state = StateOffline
		t.segments = nil
		t.ids = nil
	case errors.Is(err, context.Canceled):
		t.state = StateError
		t.errMsg = "Response aborted."
	case errors.As(err, &statusErr):
		t.state = StateError
		t.errMsg = fmt.Sprintf("Server returned status %d", statusErr.Code)
	case errors.Is(err, transport.ErrStreamInterrupted):
		t.state = StateError
		t.errMsg = "Response interrupted"
	default:
		t.state = StateError
		t.errMsg = err.Error()
	}
	log.Info("Turn %s: %s", t.id, t.state)
}

func (r *Renderer) emitLocked() {
	if r.listener != nil {
		r.listener(r.snapshotLocked())
	}
}

func (r *Renderer) snapshotLocked() Snapshot {
	t := r.turn
	if t == nil {
		return Snapshot{State: StateIdle}
	}

	s := Snapshot{
		TurnID:     t.id,
		State:      t.state,
		Error:      t.errMsg,
		Tokens:     t.usage.Total,
		EditTokens: t.usage.Edits,
		Blocks:     make([]Block, 0, len(t.segments)+1),
	}
	for i, seg := range t.segments {
		b := Block{Segment: seg}
		if seg.IsFileEdit() {
			b.ID = t.ids[i]
			d := t.diffs[b.ID]
			b.Diff = &d
		}
		s.Blocks = append(s.Blocks, b)
	}
	if t.state == StateError {
		s.Blocks = append(s.Blocks, Block{Segment: parse.Segment{
			Type: TypeError,
			Text: html.EscapeString(t.errMsg),
		}})
	}
	return s
}

// Snapshot returns the current view.
func (r *Renderer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Wait blocks until every issued file fetch has been applied or dropped.
func (r *Renderer) Wait() error {
	return r.fetches.Wait()
}

// Cancel aborts the turn in flight. It reports whether there was one.
func (r *Renderer) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turn == nil || !r.turn.state.Active() || r.turn.cancel == nil {
		return false
	}
	r.turn.cancel()
	return true
}

// Apply writes the content of the file edit blockID through the applier.
// The edit's diff is then recomputed against what was written.
func (r *Renderer) Apply(blockID int) error {
	r.mu.Lock()
	if r.applier == nil {
		r.mu.Unlock()
		return ErrNoApplier
	}
	t := r.turn
	var seg parse.Segment
	ok := false
	if t != nil {
		seg, ok = t.edit(blockID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBlock, blockID)
	}

	if err := r.applier.Apply(seg.Path, seg.Content); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turn == t {
		t.files[seg.Path] = fileContent{text: seg.Content, exists: true}
		t.requested[seg.Path] = true
		r.refreshPathLocked(t, seg.Path)
		r.emitLocked()
	}
	return nil
}

// Highlight sends the changed span of blockID to the highlighter.
func (r *Renderer) Highlight(blockID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.highlighter == nil {
		return ErrNoHighlighter
	}
	seg, d, err := r.editLocked(blockID)
	if err != nil {
		return err
	}
	start, end, ok := d.Result.HighlightRange()
	if !ok {
		return ErrNoChanges
	}
	r.highlighter.Highlight(seg.Path, start, end)
	return nil
}

// UnifiedDiff renders blockID as a unified diff against the file content
// fetched for it.
func (r *Renderer) UnifiedDiff(blockID int) (string, error) {
	r.mu.Lock()
	seg, _, err := r.editLocked(blockID)
	var fc fileContent
	if err == nil {
		fc = r.turn.files[seg.Path]
	}
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	if !fc.exists {
		return diff.Unified(seg.Path, nil, seg.Content)
	}
	return diff.Unified(seg.Path, &fc.text, seg.Content)
}

// editLocked returns a resolved file edit and its diff.
func (r *Renderer) editLocked(blockID int) (parse.Segment, DiffState, error) {
	t := r.turn
	if t == nil {
		return parse.Segment{}, DiffState{}, fmt.Errorf("%w: %d", ErrUnknownBlock, blockID)
	}
	seg, ok := t.edit(blockID)
	if !ok {
		return parse.Segment{}, DiffState{}, fmt.Errorf("%w: %d", ErrUnknownBlock, blockID)
	}
	d := t.diffs[blockID]
	if d.Pending() {
		return seg, d, ErrDiffPending
	}
	return seg, d, nil
}
