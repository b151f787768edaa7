package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Schemas differ across tools and tool versions, so field extraction
// is driven by ordered alias lists rather than typed decoding. The
// first alias that yields a usable value wins; the lists below are
// data on purpose so the precedence stays auditable.

var timestampKeys = []string{
	"timestamp", "ts", "time", "created_at", "createdAt", "date",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// textKeys are tried in order; each path is checked first as a plain
// string, then as an array of content parts.
var textKeys = []string{"content", "message.content", "text", "message"}

// partKeys are the sub-fields concatenated from each content part.
var partKeys = []string{"text", "value", "data"}

var toolNameKeys = []string{"tool_name", "toolName", "tool", "name", "function.name"}

var toolInputKeys = []string{"input", "arguments", "tool_input", "function.arguments"}

// toolOutputKeys are concatenated in order, not first-match.
var toolOutputKeys = []string{"stdout", "stderr", "result", "output"}

var messageIDKeys = []string{"uuid", "id", "message_id", "messageId", "message.id"}

var parentIDKeys = []string{"parentUuid", "parent_id", "parentId", "parent_uuid"}

var modelKeys = []string{"model", "message.model", "payload.model"}

var cwdKeys = []string{"cwd", "workingDirectory", "working_directory", "payload.cwd"}

var kindByType = map[string]Kind{
	"user":                 KindUser,
	"human":                KindUser,
	"prompt":               KindUser,
	"assistant":            KindAssistant,
	"completion":           KindAssistant,
	"message":              KindAssistant,
	"tool_use":             KindToolCall,
	"tool_call":            KindToolCall,
	"function_call":        KindToolCall,
	"tool_result":          KindToolResult,
	"tool_response":        KindToolResult,
	"function_call_output": KindToolResult,
	"error":                KindError,
}

var kindByRole = map[string]Kind{
	"user":      KindUser,
	"human":     KindUser,
	"assistant": KindAssistant,
	"model":     KindAssistant,
	"tool":      KindToolResult,
}

// normalizeLine converts one raw transcript line into an Event.
// A line that is not valid JSON becomes an opaque meta event with the
// raw text preserved; normalization never fails.
func normalizeLine(line []byte, sessionID string, seq int) Event {
	ev := Event{
		ID:      fmt.Sprintf("%s:%d", sessionID, seq),
		Kind:    KindMeta,
		RawJSON: string(line),
	}
	if !gjson.ValidBytes(line) {
		return ev
	}
	doc := gjson.ParseBytes(line)

	ev.Timestamp = extractTimestamp(doc)
	ev.Kind, ev.Role = extractKind(doc)
	ev.Text = extractText(doc)
	ev.ToolName = firstString(doc, toolNameKeys)
	ev.ToolInput = extractToolInput(doc)
	ev.ToolOutput = extractToolOutput(doc)
	ev.MessageID = firstString(doc, messageIDKeys)
	ev.ParentID = firstString(doc, parentIDKeys)
	ev.IsDelta = extractDelta(doc)
	if ev.MessageID != "" {
		ev.ID = ev.MessageID
	}
	return ev
}

// extractTimestamp walks the alias list and decodes the first usable
// value. Numeric epochs are rescaled by magnitude: >1e14 microseconds,
// >1e11 milliseconds, else seconds. The thresholds and comparison
// order are load-bearing; do not re-derive them.
func extractTimestamp(doc gjson.Result) time.Time {
	for _, key := range timestampKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.Number:
			if t := epochToTime(v.Float()); !t.IsZero() {
				return t
			}
		case gjson.String:
			if t := parseTimestampString(v.String()); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}

func epochToTime(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	switch {
	case f > 1e14: // microseconds
		return time.UnixMicro(int64(f)).UTC()
	case f > 1e11: // milliseconds
		return time.UnixMilli(int64(f)).UTC()
	default: // seconds
		return time.Unix(int64(f), 0).UTC()
	}
}

func parseTimestampString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	// Some tools stringify epoch values.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(f)
	}
	return time.Time{}
}

// extractKind derives the event kind. An explicit type field takes
// priority over the role field; unmapped values fall through to meta.
func extractKind(doc gjson.Result) (Kind, string) {
	role := firstString(doc, []string{"role", "message.role", "sender"})

	if typ := doc.Get("type").String(); typ != "" {
		if k, ok := kindByType[strings.ToLower(typ)]; ok {
			return k, role
		}
	}
	if role != "" {
		if k, ok := kindByRole[strings.ToLower(role)]; ok {
			return k, role
		}
	}
	return KindMeta, role
}

// extractText tries each text path as a plain string first, then as
// an array of content parts whose text/value/data sub-fields are
// concatenated in order.
func extractText(doc gjson.Result) string {
	for _, key := range textKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
		if v.IsArray() {
			if s := concatParts(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func concatParts(arr gjson.Result) string {
	var sb strings.Builder
	arr.ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(part.String())
			return true
		}
		for _, pk := range partKeys {
			sub := part.Get(pk)
			if sub.Exists() && sub.Type == gjson.String && sub.String() != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(sub.String())
				break
			}
		}
		return true
	})
	return sb.String()
}

// extractToolInput returns the tool input as a single-line string.
// Non-string arguments are minified to one-line JSON.
func extractToolInput(doc gjson.Result) string {
	for _, key := range toolInputKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.String {
			return v.String()
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err == nil {
			return buf.String()
		}
		return v.Raw
	}
	return ""
}

// extractToolOutput concatenates stdout, stderr, result, and output
// in that fixed order. Non-string values are pretty-printed as JSON.
func extractToolOutput(doc gjson.Result) string {
	var sb strings.Builder
	for _, key := range toolOutputKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		var s string
		if v.Type == gjson.String {
			s = v.String()
		} else {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(v.Raw), "", "  "); err == nil {
				s = buf.String()
			} else {
				s = v.Raw
			}
		}
		if s == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(s)
	}
	return sb.String()
}

// extractDelta detects streaming fragments: an explicit delta flag,
// a delta object, a chunk key, or a delta-index key.
func extractDelta(doc gjson.Result) bool {
	if d := doc.Get("delta"); d.Exists() {
		if d.Type == gjson.True || d.IsObject() {
			return true
		}
	}
	if doc.Get("chunk").Exists() {
		return true
	}
	if doc.Get("delta_index").Exists() || doc.Get("deltaIndex").Exists() {
		return true
	}
	return false
}

func firstString(doc gjson.Result, keys []string) string {
	for _, key := range keys {
		v := doc.Get(key)
		if v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
