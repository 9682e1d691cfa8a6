// Package transport talks to the chat backend: it posts one user message and
// streams the response body back as text chunks.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/youruser/contextco/internal/logging"
)

var (
	// ErrUnreachable means no response was received at all.
	ErrUnreachable = errors.New("server unreachable")
	// ErrStreamInterrupted means the response body failed after it started.
	ErrStreamInterrupted = errors.New("stream interrupted")
	log                  = logging.Get()
)

const readChunkSize = 4096

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatReply struct {
	Reply string `json:"reply"`
}

// Client sends chat messages to a backend exposing POST /chat.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. connectTimeout bounds connection
// setup and response headers only; a zero value means no limit. The body is
// streamed for as long as the server keeps it open.
func NewClient(baseURL string, connectTimeout time.Duration) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		tr.ResponseHeaderTimeout = connectTimeout
		tr.TLSHandshakeTimeout = connectTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Transport: tr},
	}
}

// Send posts text and calls onChunk for each piece of the response, in
// arrival order. Chunks never split a UTF-8 sequence.
//
// A JSON body of the form {"reply": "..."} is delivered as a single chunk so
// non-streaming backends work unchanged.
func (c *Client) Send(ctx context.Context, text string, onChunk func(string)) error {
	bodyBytes, err := json.Marshal(chatRequest{Message: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("HTTP POST %s/chat (message: %d bytes)", c.baseURL, len(text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("HTTP request failed: %v", err)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	log.Debug("HTTP response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error("Server error %d: %s", resp.StatusCode, string(body))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		return c.readReply(ctx, resp.Body, onChunk)
	}
	return c.readStream(ctx, resp.Body, onChunk)
}

func (c *Client) readReply(ctx context.Context, r io.Reader, onChunk func(string)) error {
	var reply chatReply
	if err := json.NewDecoder(r).Decode(&reply); err != nil {
		return fmt.Errorf("%w: invalid reply: %v", ErrStreamInterrupted, err)
	}
	if reply.Reply != "" {
		log.Stream(ctx, "reply", reply.Reply)
		onChunk(reply.Reply)
	}
	return nil
}

// readStream forwards the raw body. Bytes of an incomplete UTF-8 sequence
// at the end of a read are held back until the next read completes them.
func (c *Client) readStream(ctx context.Context, r io.Reader, onChunk func(string)) error {
	buf := make([]byte, readChunkSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completeUTF8(data)
			if cut > 0 {
				chunk := string(data[:cut])
				log.Stream(ctx, "chunk", chunk)
				onChunk(chunk)
			}
			carry = append([]byte(nil), data[cut:]...)
		}
		if err == nil {
			continue
		}
		if len(carry) > 0 {
			onChunk(string(carry))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		// A canceled request closes the body; report the cancellation rather
		// than the resulting read error.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Stream read error: %v", err)
		return fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	}
}

// completeUTF8 returns the length of the longest prefix of data that does
// not end inside a multi-byte sequence.
func completeUTF8(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
