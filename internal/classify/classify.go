// Package classify turns the body of a fenced block into structured rows
// (Jira tickets, Confluence pages, Slack messages) when its lines follow the
// "Key: value | Key: value" convention, and into escaped plain text otherwise.
package classify

import (
	"encoding/json"
	"html"
	"strings"
)

// Kind identifies the type of a classified row.
type Kind string

const (
	KindJira       Kind = "jira"
	KindConfluence Kind = "confluence"
	KindSlack      Kind = "slack"
)

// Row is one classified line of a data card.
type Row interface {
	Kind() Kind
}

// JiraRow summarizes a ticket. Ticket is empty when the line did not name one.
type JiraRow struct {
	Ticket  string `json:"ticket,omitempty"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// ConfluenceRow links a page.
type ConfluenceRow struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// SlackRow is a single message. Time is empty when the line had no
// bracketed timestamp.
type SlackRow struct {
	User    string `json:"user"`
	Channel string `json:"channel"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

func (JiraRow) Kind() Kind       { return KindJira }
func (ConfluenceRow) Kind() Kind { return KindConfluence }
func (SlackRow) Kind() Kind      { return KindSlack }

// Result is either a data card (Rows non-empty) or an escaped plain block.
type Result struct {
	Rows  []Row
	Plain string
}

// Structured reports whether at least one line was classified.
func (r Result) Structured() bool {
	return len(r.Rows) > 0
}

// Classify runs every candidate line of text through Rules. Lines that match
// no rule are dropped from a card; a block with no matching line at all
// falls back to plain text. It never fails.
func Classify(text string) Result {
	var rows []Row
	for _, line := range candidateLines(text) {
		for _, rule := range Rules {
			if rule.Match(line) {
				rows = append(rows, rule.Extract(line))
				break
			}
		}
	}
	if len(rows) > 0 {
		return Result{Rows: rows}
	}
	return Result{Plain: EscapeBlock(text)}
}

// EscapeBlock HTML-escapes text and turns newlines into <br>.
func EscapeBlock(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// candidateLines strips bold markers, drops blank lines and removes a
// leading bullet from each remaining line.
func candidateLines(text string) []string {
	text = strings.ReplaceAll(text, "**", "")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, bullet := range []string{"-", "*", "•"} {
			if strings.HasPrefix(line, bullet) {
				line = strings.TrimSpace(strings.TrimPrefix(line, bullet))
				break
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// MarshalJSON tags each row with its kind so a card's rows stay
// distinguishable on the wire.
func (r JiraRow) MarshalJSON() ([]byte, error) {
	type row JiraRow
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		row
	}{KindJira, row(r)})
}

func (r ConfluenceRow) MarshalJSON() ([]byte, error) {
	type row ConfluenceRow
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		row
	}{KindConfluence, row(r)})
}

func (r SlackRow) MarshalJSON() ([]byte, error) {
	type row SlackRow
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		row
	}{KindSlack, row(r)})
}
