package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Jira(t *testing.T) {
	r := Classify("Summary: Fix login | Status: Open")

	require.True(t, r.Structured())
	require.Len(t, r.Rows, 1)
	assert.Equal(t, JiraRow{Summary: "Fix login", Status: "Open"}, r.Rows[0])
}

func TestClassify_JiraWithTicket(t *testing.T) {
	r := Classify("- **Ticket:** JIRA-123 | **Summary:** Fix Auth Bug | **Status:** In Progress")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, JiraRow{Ticket: "JIRA-123", Summary: "Fix Auth Bug", Status: "In Progress"}, r.Rows[0])
}

func TestClassify_ItalicKeys(t *testing.T) {
	r := Classify("Summary: Fix login | *Status*: Open\n_Summary_: Rotate keys | _Status_: Done")

	require.Len(t, r.Rows, 2)
	assert.Equal(t, JiraRow{Summary: "Fix login", Status: "Open"}, r.Rows[0])
	assert.Equal(t, JiraRow{Summary: "Rotate keys", Status: "Done"}, r.Rows[1])
}

func TestClassify_JiraDefaults(t *testing.T) {
	r := Classify("Ticket: JIRA-9 | Summary")

	require.Len(t, r.Rows, 1)
	row := r.Rows[0].(JiraRow)
	assert.Equal(t, "", row.Summary)
	assert.Equal(t, "Unknown", row.Status)
}

func TestClassify_Slack(t *testing.T) {
	r := Classify("User: alice | Msg: hello | Channel: #general")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, SlackRow{User: "alice", Message: "hello", Channel: "general", Time: ""}, r.Rows[0])
}

func TestClassify_SlackTimestamp(t *testing.T) {
	r := Classify("• [2024-01-15 09:30 AM] User: Bob | Message: deploy is done")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, SlackRow{User: "Bob", Message: "deploy is done", Time: "2024-01-15 09:30 AM"}, r.Rows[0])
}

func TestClassify_Confluence(t *testing.T) {
	r := Classify("* Page ID: 991 | Title: Onboarding | Link: https://wiki.example.com/991")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, ConfluenceRow{Title: "Onboarding", Link: "https://wiki.example.com/991"}, r.Rows[0])
}

func TestClassify_ConfluenceDefaults(t *testing.T) {
	r := Classify("page_id 12 title")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, KindConfluence, r.Rows[0].Kind())
	assert.Equal(t, "#", r.Rows[0].(ConfluenceRow).Link)
}

func TestClassify_Precedence(t *testing.T) {
	// Confluence and Jira markers on one line: Confluence wins.
	r := Classify("Page ID: 1 | Title: Release notes | Summary: x | Status: Done")

	require.Len(t, r.Rows, 1)
	assert.Equal(t, KindConfluence, r.Rows[0].Kind())
}

func TestClassify_MixedBlockKeepsLineOrder(t *testing.T) {
	text := "Here are the results:\n\n" +
		"- User: a | Msg: first\n" +
		"- Summary: s | Status: Open\n" +
		"some trailing note\n" +
		"- Page ID: 7 | Title: T\n"
	r := Classify(text)

	require.Len(t, r.Rows, 3)
	assert.Equal(t, KindSlack, r.Rows[0].Kind())
	assert.Equal(t, KindJira, r.Rows[1].Kind())
	assert.Equal(t, KindConfluence, r.Rows[2].Kind())
}

func TestClassify_PlainFallback(t *testing.T) {
	r := Classify("fmt.Println(\"<hi>\")\nreturn a && b")

	assert.False(t, r.Structured())
	assert.Empty(t, r.Rows)
	assert.Equal(t, "fmt.Println(&#34;&lt;hi&gt;&#34;)<br>return a &amp;&amp; b", r.Plain)
}

func TestClassify_Empty(t *testing.T) {
	r := Classify("")
	assert.False(t, r.Structured())
	assert.Equal(t, "", r.Plain)
}

func TestClassify_WordBoundaryMarkers(t *testing.T) {
	// "username" and "messages" are not the user/message markers.
	r := Classify("username: x | messages: 4")
	assert.False(t, r.Structured())
}

func TestRulesOrder(t *testing.T) {
	want := []Kind{KindConfluence, KindJira, KindSlack}
	require.Len(t, Rules, len(want))
	for i, rule := range Rules {
		assert.Equal(t, want[i], rule.Kind)
	}
}

func TestRowJSON(t *testing.T) {
	data, err := json.Marshal([]Row{
		JiraRow{Summary: "s", Status: "Open"},
		SlackRow{User: "u", Message: "m"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"kind":"jira","summary":"s","status":"Open"},{"kind":"slack","user":"u","channel":"","time":"","message":"m"}]`,
		string(data))
}
