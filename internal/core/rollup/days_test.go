package rollup

import (
	"testing"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

func TestEventAwareSplitsByDay(t *testing.T) {
	day1 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.Local)
	day2 := time.Date(2026, 8, 11, 14, 0, 0, 0, time.Local)
	sess := &transcript.Session{
		ID: "s1",
		Events: []transcript.Event{
			{Kind: transcript.KindUser, Timestamp: day1},
			{Kind: transcript.KindAssistant, Timestamp: day1.Add(10 * time.Minute)},
			{Kind: transcript.KindToolCall, Timestamp: day1.Add(12 * time.Minute)},
			{Kind: transcript.KindUser, Timestamp: day2},
		},
	}

	splits := daySplits(sess)
	if len(splits) != 2 {
		t.Fatalf("len(splits) = %d, want 2", len(splits))
	}
	first, second := splits[0], splits[1]
	if first.Day != "2026-08-10" || second.Day != "2026-08-11" {
		t.Fatalf("days = %s, %s", first.Day, second.Day)
	}
	if first.Messages != 2 || first.ToolCalls != 1 {
		t.Errorf("day1 counts = %d msgs, %d calls, want 2, 1", first.Messages, first.ToolCalls)
	}
	if first.Duration != 12*time.Minute {
		t.Errorf("day1 duration = %v, want 12m", first.Duration)
	}
	if second.Messages != 1 || second.Duration != 0 {
		t.Errorf("day2 = %d msgs, %v duration, want 1, 0", second.Messages, second.Duration)
	}
}

func TestEventAwareDurationBound(t *testing.T) {
	start := time.Date(2026, 8, 10, 22, 0, 0, 0, time.Local)
	sess := &transcript.Session{
		ID:        "s1",
		StartTime: start,
		EndTime:   start.Add(6 * time.Hour),
		Events: []transcript.Event{
			{Kind: transcript.KindUser, Timestamp: start},
			{Kind: transcript.KindAssistant, Timestamp: start.Add(90 * time.Minute)},
			{Kind: transcript.KindUser, Timestamp: start.Add(5 * time.Hour)},
			{Kind: transcript.KindAssistant, Timestamp: start.Add(6 * time.Hour)},
		},
	}

	var sum time.Duration
	for _, s := range daySplits(sess) {
		sum += s.Duration
	}
	total := sess.EndTime.Sub(sess.StartTime)
	if sum > total {
		t.Errorf("per-day duration sum %v exceeds session span %v", sum, total)
	}
}

func TestProportionalSplitPreservesTotals(t *testing.T) {
	// No event timestamps: span 23:00 to 01:00 crosses midnight.
	sess := &transcript.Session{
		ID:        "s1",
		StartTime: time.Date(2026, 8, 10, 23, 0, 0, 0, time.Local),
		EndTime:   time.Date(2026, 8, 11, 1, 0, 0, 0, time.Local),
		Events: []transcript.Event{
			{Kind: transcript.KindUser},
			{Kind: transcript.KindAssistant},
			{Kind: transcript.KindUser},
			{Kind: transcript.KindToolCall},
		},
	}

	splits := daySplits(sess)
	if len(splits) != 2 {
		t.Fatalf("len(splits) = %d, want 2", len(splits))
	}
	if splits[0].Duration != time.Hour || splits[1].Duration != time.Hour {
		t.Errorf("durations = %v, %v, want 1h each", splits[0].Duration, splits[1].Duration)
	}
	msgs, calls := 0, 0
	for _, s := range splits {
		msgs += s.Messages
		calls += s.ToolCalls
	}
	if msgs != 3 || calls != 1 {
		t.Errorf("totals = %d msgs, %d calls, want 3, 1", msgs, calls)
	}
}

func TestProportionalSingleInstant(t *testing.T) {
	at := time.Date(2026, 8, 10, 12, 0, 0, 0, time.Local)
	sess := &transcript.Session{
		ID:        "s1",
		StartTime: at,
		EndTime:   at,
		Events:    []transcript.Event{{Kind: transcript.KindUser}},
	}
	splits := daySplits(sess)
	if len(splits) != 1 {
		t.Fatalf("len(splits) = %d, want 1", len(splits))
	}
	if splits[0].Messages != 1 || splits[0].Duration != 0 {
		t.Errorf("split = %+v", splits[0])
	}
}

func TestNoTimesNoSplits(t *testing.T) {
	sess := &transcript.Session{ID: "s1"}
	if splits := daySplits(sess); len(splits) != 0 {
		t.Errorf("len(splits) = %d, want 0 for session with no times", len(splits))
	}
}
