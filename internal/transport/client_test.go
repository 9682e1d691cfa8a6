package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSend_Streams(t *testing.T) {
	var gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotMessage = req.Message
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hello ", "from ", "the backend"} {
			w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0)
	var got strings.Builder
	if err := c.Send(context.Background(), "hi", func(chunk string) { got.WriteString(chunk) }); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotMessage != "hi" {
		t.Errorf("server got message %q, want %q", gotMessage, "hi")
	}
	if got.String() != "Hello from the backend" {
		t.Errorf("streamed %q, want %q", got.String(), "Hello from the backend")
	}
}

func TestSend_JSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply": "hello world"}`))
	}))
	defer srv.Close()

	var chunks []string
	err := NewClient(srv.URL, 0).Send(context.Background(), "hi", func(chunk string) { chunks = append(chunks, chunk) })
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("chunks = %q, want [\"hello world\"]", chunks)
	}
}

func TestSend_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid request", http.StatusBadRequest)
	}))
	defer srv.Close()

	called := false
	err := NewClient(srv.URL, 0).Send(context.Background(), "  ", func(string) { called = true })

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Errorf("Code = %d, want %d", statusErr.Code, http.StatusBadRequest)
	}
	if statusErr.Body != "invalid request" {
		t.Errorf("Body = %q, want %q", statusErr.Body, "invalid request")
	}
	if called {
		t.Error("onChunk should not be called on status error")
	}
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, time.Second).Send(context.Background(), "hi", func(string) {})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestSend_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient("http://127.0.0.1:1", 0).Send(ctx, "hi", func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type splitReader struct {
	parts [][]byte
}

func (r *splitReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, errEOF
	}
	n := copy(p, r.parts[0])
	r.parts = r.parts[1:]
	return n, nil
}

var errEOF = errors.New("EOF")

func TestReadStream_HoldsPartialRunes(t *testing.T) {
	word := []byte("héllo ✓")
	// Split inside both multi-byte sequences.
	r := &splitReader{parts: [][]byte{word[:2], word[2:8], word[8:]}}

	var chunks []string
	err := (&Client{}).readStream(context.Background(), r, func(c string) { chunks = append(chunks, c) })
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("err = %v, want ErrStreamInterrupted", err)
	}
	if strings.Join(chunks, "") != string(word) {
		t.Errorf("joined = %q, want %q", strings.Join(chunks, ""), string(word))
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %q is not valid UTF-8", c)
		}
	}
}

func TestCompleteUTF8(t *testing.T) {
	check := []byte("✓")
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"ascii", []byte("abc"), 3},
		{"empty", nil, 0},
		{"complete multibyte", check, 3},
		{"cut after one byte", append([]byte("a"), check[:1]...), 1},
		{"cut after two bytes", append([]byte("a"), check[:2]...), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completeUTF8(tt.data); got != tt.want {
				t.Errorf("completeUTF8(%q) = %d, want %d", tt.data, got, tt.want)
			}
		})
	}
}
