package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/youruser/contextco/internal/config"
	"github.com/youruser/contextco/internal/render"
	"github.com/youruser/contextco/internal/termview"
	"github.com/youruser/contextco/internal/transport"
	"github.com/youruser/contextco/internal/workspace"
)

const chatHelp = `Commands:
  /apply N   write file edit N to disk
  /diff N    show the full unified diff of file edit N
  /help      show this help
  exit       leave (also: quit)`

// chatSession is the interactive terminal front end.
type chatSession struct {
	out      io.Writer
	view     *termview.View
	renderer *render.Renderer
	status   render.State
	printed  int // blocks of the current turn already written to out
}

func runChat(args []string) int {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println("usage: contextco chat")
		fmt.Println(chatHelp)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "contextco: %v\n", err)
		return 1
	}
	root := cfg.WorkspaceRoot
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			fmt.Fprintf(os.Stderr, "contextco: %v\n", err)
			return 1
		}
	}
	ws, err := workspace.New(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contextco: %v\n", err)
		return 1
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = min(w-4, 120)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := transport.NewClient(cfg.ServerURL, cfg.RequestTimeout())
	s := newChatSession(os.Stdout, termview.New(width), client, ws, *cfg.ContextLines)
	fmt.Fprintf(s.out, "contextco %s, server %s, workspace %s\n", versionString(), cfg.ServerURL, ws.Root())
	fmt.Fprintln(s.out, "Type /help for commands.")
	return s.run(ctx, os.Stdin)
}

func newChatSession(out io.Writer, view *termview.View, tr render.Transport, ws *workspace.Workspace, contextLines int) *chatSession {
	s := &chatSession{out: out, view: view}
	s.renderer = render.New(tr, ws,
		render.WithApplier(ws),
		render.WithContextLines(contextLines),
		render.WithAutoHighlight(false),
		render.WithListener(s.onUpdate),
	)
	return s
}

// onUpdate prints the state indicator when it changes and, while the
// response streams, every block that can no longer change. The last block
// may still grow, and an edit is held back until its diff resolves so that
// blocks come out in message order. send prints the rest once the turn and
// its fetches have settled.
func (s *chatSession) onUpdate(snap render.Snapshot) {
	if snap.State != s.status {
		s.status = snap.State
		if snap.State.Active() {
			if line := s.view.Status(snap.State); line != "" {
				fmt.Fprintln(s.out, line)
			}
		}
	}
	if snap.State != render.StateStreaming {
		return
	}
	for s.printed < len(snap.Blocks)-1 {
		b := snap.Blocks[s.printed]
		if b.Diff != nil && b.Diff.Pending() {
			break
		}
		fmt.Fprintln(s.out, s.view.Block(b))
		s.printed++
	}
}

func (s *chatSession) run(ctx context.Context, in io.Reader) int {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return 0
		case strings.HasPrefix(line, "/"):
			s.command(line)
			continue
		}

		if err := s.send(ctx, line); errors.Is(err, context.Canceled) && ctx.Err() != nil {
			fmt.Fprintln(s.out, "interrupted")
			return 130
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		return 1
	}
	return 0
}

func (s *chatSession) send(ctx context.Context, text string) error {
	s.printed = 0
	err := s.renderer.Send(ctx, text)
	if errors.Is(err, render.ErrEmptyMessage) || errors.Is(err, render.ErrTurnInProgress) {
		fmt.Fprintln(s.out, s.view.Block(errorBlock(err.Error())))
		return err
	}
	if waitErr := s.renderer.Wait(); waitErr != nil {
		log.Error("waiting for file fetches: %v", waitErr)
	}
	fmt.Fprint(s.out, s.view.Tail(s.renderer.Snapshot(), s.printed))
	return err
}

func (s *chatSession) command(line string) {
	fields := strings.Fields(line)
	name := fields[0]
	if name == "/help" {
		fmt.Fprintln(s.out, chatHelp)
		return
	}
	if name != "/apply" && name != "/diff" {
		fmt.Fprintln(s.out, s.view.Block(errorBlock("unknown command "+name)))
		return
	}
	if len(fields) != 2 {
		fmt.Fprintln(s.out, s.view.Block(errorBlock("usage: "+name+" N")))
		return
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil || id <= 0 {
		fmt.Fprintln(s.out, s.view.Block(errorBlock("block number must be a positive integer")))
		return
	}

	switch name {
	case "/apply":
		if err := s.renderer.Apply(id); err != nil {
			fmt.Fprintln(s.out, s.view.Block(errorBlock(errorMessage(err))))
			return
		}
		fmt.Fprintf(s.out, "applied [%d]\n", id)
	case "/diff":
		text, err := s.renderer.UnifiedDiff(id)
		if err != nil {
			fmt.Fprintln(s.out, s.view.Block(errorBlock(errorMessage(err))))
			return
		}
		if text == "" {
			text = "no changes\n"
		}
		fmt.Fprint(s.out, text)
	}
}

func errorBlock(msg string) render.Block {
	b := render.Block{}
	b.Type = render.TypeError
	b.Text = msg
	return b
}

func errorMessage(err error) string {
	msg, _ := errorResponse(err)["message"].(string)
	return msg
}
