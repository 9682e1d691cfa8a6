// Package tokens estimates token counts for assistant responses.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// bytesPerToken is the fallback ratio when the codec is unavailable.
const bytesPerToken = 4

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func cl100k() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Count returns the cl100k_base token count of text.
func Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	c, err := cl100k()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Approx is Count with a length-based guess when encoding fails.
func Approx(text string) int {
	n, err := Count(text)
	if err != nil {
		return (len(text) + bytesPerToken - 1) / bytesPerToken
	}
	return n
}

// Usage is the token estimate of one finished response.
type Usage struct {
	Total int // whole response, fences and labels included
	Edits int // proposed file contents only
}

// Text is the share of the response that is not file content.
func (u Usage) Text() int {
	return u.Total - u.Edits
}

// Measure estimates response and the part of it taken by the proposed file
// contents in edits. Edits never exceeds Total.
func Measure(response string, edits []string) Usage {
	u := Usage{Total: Approx(response)}
	for _, e := range edits {
		u.Edits += Approx(e)
	}
	u.Edits = min(u.Edits, u.Total)
	return u
}
