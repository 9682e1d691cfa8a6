package main

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/youruser/contextco/internal/config"
	"github.com/youruser/contextco/internal/logging"
	"github.com/youruser/contextco/internal/render"
	"github.com/youruser/contextco/internal/tokens"
	"github.com/youruser/contextco/internal/transport"
	"github.com/youruser/contextco/internal/workspace"
)

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var (
	appConfig     *config.Config
	appRenderer   *render.Renderer
	workspaceRoot string // set by the init action, overrides config
	log           = logging.Get()

	respondMu sync.Mutex
	configMu  sync.Mutex

	// sendMu guards sendID, the request id of the latest send. Events emitted
	// by the renderer (including late diff results) are tagged with it.
	sendMu sync.Mutex
	sendID string

	// rendererGen numbers renderers. init bumps it so that events from a
	// replaced renderer's late fetches are dropped.
	rendererGen atomic.Uint64
)

type streamState struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	requestID string
	canceled  bool
}

var activeStream streamState

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("contextco %s\n", versionString())
			return
		case "chat":
			os.Exit(runChat(os.Args[2:]))
		}
	}

	if os.Getenv("CONTEXTCO_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "contextco: process started with CONTEXTCO_DEBUG=1\n")
	}
	log.Info("Build: %s; go=%s", versionString(), runtime.Version())
	defer log.Close()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		handleRequest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB).",
			})
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		os.Exit(1)
	}
}

// ensureRenderer loads the config and builds the renderer on first use.
func ensureRenderer() (*render.Renderer, error) {
	configMu.Lock()
	defer configMu.Unlock()

	if appRenderer != nil {
		return appRenderer, nil
	}
	if appConfig == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		appConfig = cfg
	}

	root := workspaceRoot
	if root == "" {
		root = appConfig.WorkspaceRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	ws, err := workspace.New(root)
	if err != nil {
		return nil, err
	}

	client := transport.NewClient(appConfig.ServerURL, appConfig.RequestTimeout())
	appRenderer = newRenderer(appConfig, client, ws, newRendererEvents())
	log.Info("Renderer ready: server=%s workspace=%s", appConfig.ServerURL, ws.Root())
	return appRenderer, nil
}

func newRenderer(cfg *config.Config, tr render.Transport, ws *workspace.Workspace, ev *rendererEvents) *render.Renderer {
	opts := []render.Option{
		render.WithApplier(ws),
		render.WithHighlighter(ev),
		render.WithListener(ev.snapshot),
	}
	if cfg.ContextLines != nil {
		opts = append(opts, render.WithContextLines(*cfg.ContextLines))
	}
	if cfg.HighlightOnResolve != nil {
		opts = append(opts, render.WithAutoHighlight(*cfg.HighlightOnResolve))
	}
	return render.New(tr, ws, opts...)
}

func reserveActiveStream(reqID string) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != "" {
		return false
	}
	activeStream.requestID = reqID
	activeStream.cancel = nil
	activeStream.canceled = false
	return true
}

func setActiveStreamCancel(reqID string, cancel context.CancelFunc) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != reqID {
		return false
	}
	activeStream.cancel = cancel
	return true
}

func clearActiveStream(reqID string) {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != reqID {
		return
	}
	activeStream.requestID = ""
	activeStream.cancel = nil
	activeStream.canceled = false
}

func cancelActiveStream(targetID string) bool {
	activeStream.mu.Lock()
	if activeStream.requestID == "" {
		activeStream.mu.Unlock()
		return false
	}
	if targetID != "" && activeStream.requestID != targetID {
		activeStream.mu.Unlock()
		return false
	}
	cancel := activeStream.cancel
	activeStream.canceled = true
	activeStream.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func wasStreamCanceled(reqID string) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	return activeStream.requestID == reqID && activeStream.canceled
}

func hasActiveStream() bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	return activeStream.requestID != ""
}

func setSendID(reqID string) {
	sendMu.Lock()
	defer sendMu.Unlock()
	sendID = reqID
}

func currentSendID() string {
	sendMu.Lock()
	defer sendMu.Unlock()
	return sendID
}

// actionBlockedDuringStream lists actions that would swap the renderer out
// from under a running turn.
func actionBlockedDuringStream(action string) bool {
	switch action {
	case "init", "send":
		return true
	}
	return false
}

func handleRequest(line string) {
	var req map[string]any
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return
	}

	action, _ := req["action"].(string)
	log.Protocol(logging.Inbound, action, line)
	reqID := requestID(req)

	if hasActiveStream() && actionBlockedDuringStream(action) {
		respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
		return
	}

	switch action {
	case "ping":
		respond(reqID, map[string]any{"type": "ok"})

	case "version":
		respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "init":
		root, _ := req["workspace_root"].(string)
		if root == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: workspace_root"})
			return
		}
		ws, err := workspace.New(root)
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		configMu.Lock()
		workspaceRoot = ws.Root()
		appRenderer = nil
		rendererGen.Add(1)
		configMu.Unlock()
		respond(reqID, map[string]any{"type": "ok", "workspace_root": ws.Root()})

	case "send":
		if !reserveActiveStream(reqID) {
			respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
			return
		}
		go handleSend(reqID, req)

	case "cancel":
		targetID, _ := req["target_request_id"].(string)
		if !cancelActiveStream(targetID) {
			respond(reqID, map[string]any{"type": "error", "message": "No active request to cancel"})
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "snapshot":
		r, err := ensureRenderer()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, snapshotEvent(r.Snapshot()))

	case "apply":
		handleBlockAction(reqID, req, func(r *render.Renderer, id int) (map[string]any, error) {
			if err := r.Apply(id); err != nil {
				return nil, err
			}
			return map[string]any{"type": "ok", "block_id": id}, nil
		})

	case "highlight":
		handleBlockAction(reqID, req, func(r *render.Renderer, id int) (map[string]any, error) {
			if err := r.Highlight(id); err != nil {
				return nil, err
			}
			return map[string]any{"type": "ok", "block_id": id}, nil
		})

	case "diff":
		handleBlockAction(reqID, req, func(r *render.Renderer, id int) (map[string]any, error) {
			text, err := r.UnifiedDiff(id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"type": "diff", "block_id": id, "diff": text}, nil
		})

	case "estimate_tokens":
		text, _ := req["text"].(string)
		count, err := tokens.Count(text)
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "tokens", "tokens": count})

	case "shutdown":
		os.Exit(0)

	default:
		respond(reqID, map[string]any{"type": "error", "message": fmt.Sprintf("Unknown action: %s", action)})
	}
}

func handleBlockAction(reqID string, req map[string]any, fn func(*render.Renderer, int) (map[string]any, error)) {
	id, ok := blockID(req)
	if !ok {
		respond(reqID, map[string]any{"type": "error", "message": "Missing required field: block_id"})
		return
	}
	r, err := ensureRenderer()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	resp, err := fn(r, id)
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	respond(reqID, resp)
}

func handleSend(reqID string, req map[string]any) {
	defer clearActiveStream(reqID)

	if wasStreamCanceled(reqID) {
		respond(reqID, map[string]any{"type": "error", "message": "Response aborted by user."})
		return
	}

	content, _ := req["content"].(string)
	if strings.TrimSpace(content) == "" {
		respond(reqID, map[string]any{"type": "error", "message": "Missing required field: content"})
		return
	}

	r, err := ensureRenderer()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !setActiveStreamCancel(reqID, cancel) {
		return
	}
	setSendID(reqID)

	err = r.Send(ctx, content)
	if errors.Is(err, render.ErrTurnInProgress) || errors.Is(err, render.ErrEmptyMessage) {
		respond(reqID, errorResponse(err))
		return
	}

	snap := r.Snapshot()
	switch snap.State {
	case render.StateDone:
		respond(reqID, map[string]any{"type": "done", "turn_id": snap.TurnID, "tokens": snap.Tokens, "edit_tokens": snap.EditTokens})
	case render.StateOffline:
		respond(reqID, map[string]any{"type": "offline", "turn_id": snap.TurnID, "message": "Server unreachable"})
	default:
		msg := snap.Error
		if wasStreamCanceled(reqID) {
			msg = "Response aborted by user."
		} else if msg == "" && err != nil {
			msg, _ = errorResponse(err)["message"].(string)
		}
		respond(reqID, map[string]any{"type": "error", "turn_id": snap.TurnID, "message": msg})
	}
}

// rendererEvents turns one renderer's callbacks into protocol events. Its
// methods run with that renderer locked, which also guards last.
type rendererEvents struct {
	gen  uint64
	last render.State
}

func newRendererEvents() *rendererEvents {
	return &rendererEvents{gen: rendererGen.Add(1)}
}

func (e *rendererEvents) current() bool {
	return e.gen == rendererGen.Load()
}

func (e *rendererEvents) Highlight(path string, start, end int) {
	if !e.current() {
		return
	}
	respond(currentSendID(), map[string]any{
		"type":  "highlight",
		"path":  path,
		"start": start,
		"end":   end,
	})
}

func (e *rendererEvents) snapshot(s render.Snapshot) {
	if !e.current() {
		log.Debug("Dropping snapshot of replaced renderer (turn %s)", s.TurnID)
		return
	}
	reqID := currentSendID()
	if s.State != e.last {
		e.last = s.State
		respond(reqID, map[string]any{"type": "state", "turn_id": s.TurnID, "state": string(s.State)})
	}
	respond(reqID, snapshotEvent(s))
}

func snapshotEvent(s render.Snapshot) map[string]any {
	segments := make([]map[string]any, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		segments = append(segments, blockJSON(b))
	}
	return map[string]any{
		"type":     "segments",
		"turn_id":  s.TurnID,
		"state":    string(s.State),
		"segments": segments,
	}
}

func blockJSON(b render.Block) map[string]any {
	m := map[string]any{"type": b.Type}
	switch {
	case b.IsFileEdit():
		m["block_id"] = b.ID
		m["path"] = b.Path
		m["content"] = b.Content
		if b.Language != "" {
			m["language"] = b.Language
		}
		if b.Diff != nil {
			m["diff"] = diffJSON(*b.Diff)
		}
	case len(b.Rows) > 0:
		m["rows"] = b.Rows
	default:
		m["text"] = b.Text
	}
	return m
}

func diffJSON(d render.DiffState) map[string]any {
	m := map[string]any{"status": string(d.Status)}
	if d.Pending() {
		return m
	}
	res := d.Result
	m["no_changes"] = res.NoChanges
	m["added"] = res.Added()
	m["removed"] = res.Removed()
	if res.NoChanges {
		return m
	}
	lines := make([]map[string]any, 0, len(res.Window))
	for _, l := range res.Window {
		lines = append(lines, map[string]any{
			"line": l.Index + 1,
			"text": l.Text,
			"kind": l.Kind.String(),
		})
	}
	m["lines"] = lines
	m["ellipsis_before"] = res.EllipsisBefore
	m["ellipsis_after"] = res.EllipsisAfter
	if start, end, ok := res.HighlightRange(); ok {
		m["highlight"] = map[string]any{"start": start, "end": end}
	}
	return m
}

func errorResponse(err error) map[string]any {
	var msg string
	var statusErr *transport.StatusError
	switch {
	case errors.Is(err, render.ErrTurnInProgress):
		msg = "Another request is already in progress"
	case errors.Is(err, render.ErrEmptyMessage):
		msg = "Message is empty"
	case errors.Is(err, render.ErrUnknownBlock):
		msg = "Unknown block"
	case errors.Is(err, render.ErrDiffPending):
		msg = "File content is still loading"
	case errors.Is(err, render.ErrNoChanges):
		msg = "No visible changes"
	case errors.Is(err, workspace.ErrPathEscape):
		msg = "Path escapes the workspace root"
	case errors.Is(err, workspace.ErrInvalidPath):
		msg = "Invalid path"
	case errors.Is(err, transport.ErrUnreachable):
		msg = "Server unreachable"
	case errors.As(err, &statusErr):
		msg = fmt.Sprintf("Server returned status %d", statusErr.Code)
	case errors.Is(err, config.ErrInvalidJSON), errors.Is(err, config.ErrInvalidYAML):
		msg = "Invalid config file: " + err.Error()
	default:
		msg = err.Error()
	}
	return map[string]any{"type": "error", "message": msg}
}

func respond(reqID string, data map[string]any) {
	out, _ := json.Marshal(addResponseID(reqID, data))
	msgType, _ := data["type"].(string)
	respondMu.Lock()
	defer respondMu.Unlock()
	log.Protocol(logging.Outbound, msgType, string(out))
	fmt.Println(string(out))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(req map[string]any) string {
	switch v := req["request_id"].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// blockID reads a positive integer block_id from a request.
func blockID(req map[string]any) (int, bool) {
	switch v := req["block_id"].(type) {
	case float64:
		if v > 0 && v == float64(int(v)) {
			return int(v), true
		}
	case int:
		if v > 0 {
			return v, true
		}
	}
	return 0, false
}
