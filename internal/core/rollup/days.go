package rollup

import (
	"sort"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

// DaySplit is one session's activity attributed to one local
// calendar day.
type DaySplit struct {
	Day       string // YYYY-MM-DD, local time
	Messages  int
	ToolCalls int
	Duration  time.Duration
}

const dayLayout = "2006-01-02"

// daySplits attributes a session's messages, tool calls and duration
// to calendar days. When events carry timestamps the split is
// event-aware; otherwise the start-end span is divided
// proportionally across the days it crosses.
func daySplits(sess *transcript.Session) []DaySplit {
	if splits := eventAwareSplits(sess); len(splits) > 0 {
		return splits
	}
	return proportionalSplits(sess)
}

type dayAccum struct {
	messages  int
	toolCalls int
	first     time.Time
	last      time.Time
}

func eventAwareSplits(sess *transcript.Session) []DaySplit {
	days := make(map[string]*dayAccum)
	for i := range sess.Events {
		ev := &sess.Events[i]
		if !ev.HasTimestamp() {
			continue
		}
		ts := ev.Timestamp.Local()
		day := ts.Format(dayLayout)
		acc := days[day]
		if acc == nil {
			acc = &dayAccum{first: ts, last: ts}
			days[day] = acc
		}
		if ts.Before(acc.first) {
			acc.first = ts
		}
		if ts.After(acc.last) {
			acc.last = ts
		}
		switch ev.Kind {
		case transcript.KindUser, transcript.KindAssistant:
			acc.messages++
		case transcript.KindToolCall:
			acc.toolCalls++
		}
	}
	if len(days) == 0 {
		return nil
	}

	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)

	splits := make([]DaySplit, 0, len(keys))
	for _, day := range keys {
		acc := days[day]
		splits = append(splits, DaySplit{
			Day:       day,
			Messages:  acc.messages,
			ToolCalls: acc.toolCalls,
			Duration:  acc.last.Sub(acc.first),
		})
	}
	return splits
}

// proportionalSplits divides the session span across the calendar
// days it crosses, each day weighted by its share of the span.
// Counts round down day by day with the remainder landing on the
// last day, so totals are preserved exactly.
func proportionalSplits(sess *transcript.Session) []DaySplit {
	start, end := sess.StartTime, sess.EndTime
	if start.IsZero() {
		start = sess.FileModTime
	}
	if end.IsZero() || end.Before(start) {
		end = start
	}
	if start.IsZero() {
		return nil
	}
	start, end = start.Local(), end.Local()

	messages, toolCalls := countMessages(sess)
	total := end.Sub(start)
	if total <= 0 {
		return []DaySplit{{
			Day:       start.Format(dayLayout),
			Messages:  messages,
			ToolCalls: toolCalls,
		}}
	}

	var splits []DaySplit
	usedMsgs, usedCalls := 0, 0
	for cursor := start; cursor.Before(end); {
		dayEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, cursor.Location()).AddDate(0, 0, 1)
		sliceEnd := dayEnd
		if end.Before(sliceEnd) {
			sliceEnd = end
		}
		slice := sliceEnd.Sub(cursor)
		frac := float64(slice) / float64(total)
		splits = append(splits, DaySplit{
			Day:       cursor.Format(dayLayout),
			Messages:  int(float64(messages) * frac),
			ToolCalls: int(float64(toolCalls) * frac),
			Duration:  slice,
		})
		usedMsgs += splits[len(splits)-1].Messages
		usedCalls += splits[len(splits)-1].ToolCalls
		cursor = sliceEnd
	}
	last := &splits[len(splits)-1]
	last.Messages += messages - usedMsgs
	last.ToolCalls += toolCalls - usedCalls
	return splits
}

func countMessages(sess *transcript.Session) (messages, toolCalls int) {
	for i := range sess.Events {
		switch sess.Events[i].Kind {
		case transcript.KindUser, transcript.KindAssistant:
			messages++
		case transcript.KindToolCall:
			toolCalls++
		}
	}
	return messages, toolCalls
}
