package transcript

import (
	"time"
)

// Kind classifies a normalized transcript event.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindError      Kind = "error"
	KindMeta       Kind = "meta"
)

// Event is one normalized record from a session transcript.
// RawJSON always preserves the original line verbatim, even when
// nothing else could be extracted from it.
type Event struct {
	ID         string
	Timestamp  time.Time // zero when the line carried no usable timestamp
	Kind       Kind
	Role       string
	Text       string
	ToolName   string
	ToolInput  string
	ToolOutput string
	MessageID  string
	ParentID   string
	IsDelta    bool
	RawJSON    string
}

// HasTimestamp reports whether the event carried a usable timestamp.
func (e *Event) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// SearchableText returns the concatenation of the event fields that
// free-text search should consider, cheapest-to-build first. RawJSON
// is intentionally excluded; the filter engine falls back to it last.
func (e *Event) SearchableText() string {
	n := len(e.Text) + len(e.ToolInput) + len(e.ToolOutput) + 2
	if n == 2 {
		return ""
	}
	buf := make([]byte, 0, n)
	buf = append(buf, e.Text...)
	if e.ToolInput != "" {
		buf = append(buf, '\n')
		buf = append(buf, e.ToolInput...)
	}
	if e.ToolOutput != "" {
		buf = append(buf, '\n')
		buf = append(buf, e.ToolOutput...)
	}
	return string(buf)
}
