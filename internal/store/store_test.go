package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobpilot/internal/domain/job"
)

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	_ = m.SetJSON(ctx, "a", "x", time.Minute)
	_ = m.SetJSON(ctx, "b", "y", 0)

	var s string
	if ok, _ := m.GetJSON(ctx, "a", &s); !ok || s != "x" {
		t.Fatalf("expected live entry")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := m.GetJSON(ctx, "a", &s); ok {
		t.Fatalf("expected expired entry to be invisible")
	}
	_ = m.SetJSON(ctx, "c", "z", time.Second)
	now = now.Add(time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected one swept entry, got %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("entry without ttl must survive, len=%d", m.Len())
	}
}

func TestMemory_DeleteByPattern(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.SetJSON(ctx, "session:s1:tracking:1", "a", 0)
	_ = m.SetJSON(ctx, "session:s1:tracking:2", "b", 0)
	_ = m.SetJSON(ctx, "tab:1", "c", 0)
	_ = m.DeleteByPattern(ctx, "session:s1:*")
	if m.Len() != 1 {
		t.Fatalf("expected only tab key left, len=%d", m.Len())
	}
}

func TestPollStore_TakeIsSingleAssignment(t *testing.T) {
	ps := NewPollStore(NewMemory())
	ctx := context.Background()
	if err := ps.Put(ctx, PollState{ChatKey: "chat-1", TabID: "7", StartedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st, ok, _ := ps.Take(ctx, "chat-1"); ok && st.TabID == "7" {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
	if _, ok, _ := ps.Peek(ctx, "chat-1"); ok {
		t.Fatalf("state must be gone")
	}
}

func TestTabStore_UpdateAndClear(t *testing.T) {
	ts := NewTabStore(NewMemory())
	ctx := context.Background()
	_, err := ts.Update(ctx, "3", func(s *TabState) {
		s.Phase = PhaseExtracted
		s.Extraction = &job.ExtractionResult{URL: "https://x", ExtractionMethod: job.MethodPageText}
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err := ts.Update(ctx, "3", func(s *TabState) { s.Prompt = "hello" })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.Phase != PhaseExtracted || st.Extraction == nil || st.Prompt != "hello" || st.TabID != "3" {
		t.Fatalf("unexpected state %+v", st)
	}
	_ = ts.Clear(ctx, "3")
	if _, ok, _ := ts.Get(ctx, "3"); ok {
		t.Fatalf("expected cleared tab")
	}
}

func TestTabStore_ConcurrentUpdatesKeepEveryWrite(t *testing.T) {
	ts := NewTabStore(NewMemory())
	ctx := context.Background()

	const writers = 100
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ts.Update(ctx, "5", func(s *TabState) {
				prompt := s.Prompt
				time.Sleep(100 * time.Microsecond)
				s.Prompt = prompt + "x"
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _, _ := ts.Get(ctx, "5")
	if len(st.Prompt) != writers {
		t.Fatalf("lost updates: got %d writes, want %d", len(st.Prompt), writers)
	}
	if n := len(ts.locks.locks); n != 0 {
		t.Fatalf("tab locks must be released, %d left", n)
	}
}

func TestSessionStore_ScopedPerBoot(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()
	first := NewSessionStore(kv)
	_ = first.SetTrackingID(ctx, "9", "job-abc")
	if id, ok, _ := first.TrackingID(ctx, "9"); !ok || id != "job-abc" {
		t.Fatalf("expected tracking id")
	}
	second := NewSessionStore(kv)
	if _, ok, _ := second.TrackingID(ctx, "9"); ok {
		t.Fatalf("a new session must not see previous ids")
	}
}
