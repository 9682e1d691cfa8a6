package parse

import "github.com/youruser/contextco/internal/classify"

// Segment types.
const (
	TypeProse      = "prose"
	TypeDataCard   = "data_card"
	TypePlainBlock = "plain_block"
	TypeFileEdit   = "file_edit"
)

// Segment is one typed unit of a parsed assistant message.
type Segment struct {
	Type     string         `json:"type"`               // "prose", "data_card", "plain_block", "file_edit"
	Text     string         `json:"text,omitempty"`     // HTML-escaped text for prose and plain_block
	Rows     []classify.Row `json:"rows,omitempty"`     // for data_card
	Path     string         `json:"path,omitempty"`     // for file_edit
	Language string         `json:"language,omitempty"` // for file_edit: fence language tag, if any
	Content  string         `json:"content,omitempty"`  // for file_edit: raw replacement text
}

// IsFileEdit reports whether the segment proposes a file replacement.
func (s Segment) IsFileEdit() bool {
	return s.Type == TypeFileEdit
}
