// Package logging writes the backend's debug log. It is off unless
// CONTEXTCO_DEBUG=1 is set or ~/.contextco/debug exists; errors always reach
// stderr.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

// Direction marks a protocol line as read from or written to the editor.
type Direction string

const (
	Inbound  Direction = "<-"
	Outbound Direction = "->"
)

// FetchEvent is a step in the lifecycle of a file-content fetch.
type FetchEvent string

const (
	FetchStart    FetchEvent = "start"
	FetchFailed   FetchEvent = "failed"
	FetchStale    FetchEvent = "stale"
	FetchResolved FetchEvent = "resolved"
)

const (
	protocolLimit = 500
	streamLimit   = 200
	turnIDLen     = 8
)

// Logger writes timestamped lines to a per-process file.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer // nil when disabled
	closer io.Closer
	stderr io.Writer
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Get returns the process-wide logger.
func Get() *Logger {
	once.Do(func() {
		defaultLogger = open(os.Stderr)
	})
	return defaultLogger
}

func newLogger(out, stderr io.Writer) *Logger {
	l := &Logger{out: out, stderr: stderr}
	if c, ok := out.(io.Closer); ok {
		l.closer = c
	}
	return l
}

func open(stderr io.Writer) *Logger {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(stderr, "contextco log: failed to get home dir: %v\n", err)
		return newLogger(nil, stderr)
	}
	reason, ok := debugReason(home)
	if !ok {
		return newLogger(nil, stderr)
	}

	logsDir := filepath.Join(home, ".contextco", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(stderr, "contextco log: failed to create logs dir %s: %v\n", logsDir, err)
		return newLogger(nil, stderr)
	}
	logPath := filepath.Join(logsDir, fmt.Sprintf("contextco-%s.log", time.Now().Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(stderr, "contextco log: failed to open log file %s: %v\n", logPath, err)
		return newLogger(nil, stderr)
	}

	l := newLogger(file, stderr)
	l.Info("Logging started (%s), file %s", reason, logPath)
	return l
}

func debugReason(home string) (string, bool) {
	if os.Getenv("CONTEXTCO_DEBUG") == "1" {
		return "CONTEXTCO_DEBUG=1", true
	}
	if _, err := os.Stat(filepath.Join(home, ".contextco", "debug")); err == nil {
		return "~/.contextco/debug exists", true
	}
	return "", false
}

type turnKey struct{}

// WithTurn tags ctx with a turn id. Stream and Fetch lines logged with the
// returned context name the turn they belong to.
func WithTurn(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnKey{}, turnID)
}

func turnTag(ctx context.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	if id == "" {
		return "turn=-"
	}
	if len(id) > turnIDLen {
		id = id[:turnIDLen]
	}
	return "turn=" + id
}

func (l *Logger) line(level, msg string) {
	if l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %-6s %s\n", time.Now().Format("15:04:05.000"), level, msg)
}

func (l *Logger) Debug(format string, args ...any) {
	if l.out != nil {
		l.line("DEBUG", fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Info(format string, args ...any) {
	if l.out != nil {
		l.line("INFO", fmt.Sprintf(format, args...))
	}
}

// Error logs to the file and to stderr.
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.stderr, "contextco error: %s\n", msg)
	l.mu.Unlock()
	l.line("ERROR", msg)
}

// Protocol logs one JSON line exchanged with the editor.
func (l *Logger) Protocol(dir Direction, kind, raw string) {
	if l.out == nil {
		return
	}
	l.line("PROTO", fmt.Sprintf("%s %s %s", dir, kind, truncate(raw, protocolLimit)))
}

// Stream logs text received from the chat server. The text is quoted so
// that newlines inside a chunk keep one log line per event.
func (l *Logger) Stream(ctx context.Context, kind, text string) {
	if l.out == nil {
		return
	}
	l.line("STREAM", fmt.Sprintf("%s %s %dB %q", turnTag(ctx), kind, len(text), truncate(text, streamLimit)))
}

// Fetch logs a file-content fetch for the edit block blockID.
func (l *Logger) Fetch(ctx context.Context, ev FetchEvent, path string, blockID int) {
	if l.out == nil {
		return
	}
	l.line("FETCH", fmt.Sprintf("%s block=%d %s %s", turnTag(ctx), blockID, ev, path))
}

func (l *Logger) Close() {
	if l.closer != nil {
		l.closer.Close()
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
