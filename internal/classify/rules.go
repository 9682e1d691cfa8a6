package classify

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Rule pairs a line predicate with the extractor that builds a row from a
// matching line. Rules are evaluated in table order and the first match wins.
type Rule struct {
	Kind    Kind
	Match   func(line string) bool
	Extract func(line string) Row
}

// Rules is the fixed precedence order: Confluence, then Jira, then Slack.
var Rules = []Rule{
	{
		Kind: KindConfluence,
		Match: func(line string) bool {
			return has(pageIDMarker, line) && has(titleMarker, line)
		},
		Extract: func(line string) Row {
			return ConfluenceRow{
				Title: FieldOr(line, "Untitled Page", "title"),
				Link:  FieldOr(line, "#", "link", "url"),
			}
		},
	},
	{
		Kind: KindJira,
		Match: func(line string) bool {
			return has(summaryMarker, line) && (has(ticketMarker, line) || has(statusMarker, line))
		},
		Extract: func(line string) Row {
			return JiraRow{
				Ticket:  FieldOr(line, "", "ticket", "key"),
				Summary: FieldOr(line, "No Summary", "summary"),
				Status:  FieldOr(line, "Unknown", "status"),
			}
		},
	},
	{
		Kind: KindSlack,
		Match: func(line string) bool {
			return has(messageMarker, line) && has(userMarker, line)
		},
		Extract: func(line string) Row {
			ts, rest := leadingTimestamp(line)
			channel := FieldOr(rest, "", "channel")
			return SlackRow{
				User:    FieldOr(rest, "Unknown User", "user"),
				Channel: strings.TrimLeft(channel, "#＃"),
				Time:    ts,
				Message: FieldOr(rest, "", "message", "msg"),
			}
		},
	},
}

var (
	pageIDMarker  = marker(`page[\s_-]*id`)
	titleMarker   = marker(`title`)
	summaryMarker = marker(`summary`)
	ticketMarker  = marker(`ticket`)
	statusMarker  = marker(`status`)
	messageMarker = marker(`message|msg`)
	userMarker    = marker(`user`)

	timestampPattern = regexp2.MustCompile(`^\s*\[(?<time>[^\]]*)\]\s*`, regexp2.None)
)

// marker matches a word anywhere in a line, ignoring case. The lookarounds
// keep "user" from matching inside "username".
func marker(word string) *regexp2.Regexp {
	return regexp2.MustCompile(`(?<![A-Za-z0-9])(?:`+word+`)(?![A-Za-z0-9])`, regexp2.IgnoreCase)
}

func has(re *regexp2.Regexp, line string) bool {
	ok, err := re.MatchString(line)
	return err == nil && ok
}

// leadingTimestamp splits "[10:02] User: ..." into "10:02" and the rest.
func leadingTimestamp(line string) (ts, rest string) {
	m, err := timestampPattern.FindStringMatch(line)
	if err != nil || m == nil {
		return "", line
	}
	ts = strings.TrimSpace(m.GroupByName("time").String())
	rest, err = timestampPattern.Replace(line, "", -1, 1)
	if err != nil {
		return "", line
	}
	return ts, rest
}
