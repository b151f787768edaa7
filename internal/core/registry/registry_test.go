package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

func TestPutGet(t *testing.T) {
	r := New()
	sess := &transcript.Session{ID: "abc", Source: transcript.SourceClaude}
	r.Put(sess)

	got, ok := r.Get("abc")
	if !ok {
		t.Fatal("Get(abc) not found")
	}
	if got != sess {
		t.Errorf("Get returned a different pointer")
	}
	if _, ok := r.Get("missing"); ok {
		t.Errorf("Get(missing) = found, want not found")
	}
}

func TestPutReplaces(t *testing.T) {
	r := New()
	r.Put(&transcript.Session{ID: "abc", EventCount: 1})
	r.Put(&transcript.Session{ID: "abc", EventCount: 9})

	got, _ := r.Get("abc")
	if got.EventCount != 9 {
		t.Errorf("EventCount = %d, want 9", got.EventCount)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestSnapshotOrder(t *testing.T) {
	r := New()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r.Put(&transcript.Session{ID: "old", StartTime: base})
	r.Put(&transcript.Session{ID: "new", StartTime: base.Add(time.Hour)})
	r.Put(&transcript.Session{ID: "mid", StartTime: base.Add(time.Minute)})

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("snap[%d].ID = %q, want %q", i, snap[i].ID, id)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", n)
			r.Put(&transcript.Session{ID: id})
			r.Get(id)
			r.Snapshot()
		}(i)
	}
	wg.Wait()
	if r.Len() != 20 {
		t.Errorf("Len = %d, want 20", r.Len())
	}
}
