package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/claimvoice/internal/intake"
)

func TestHistory_SlidingWindow(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.AddCaller(fmt.Sprintf("line %d", i))
	}

	got := h.Lines()
	want := []string{"CALLER: line 3", "CALLER: line 4", "CALLER: line 5"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHistory_Last(t *testing.T) {
	h := NewHistory(DefaultHistorySize)
	h.AddAssistant("Hello!")
	h.AddCaller("my car was hit")

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{6, 2},
	}
	for _, tt := range tests {
		if got := h.Last(tt.n); len(got) != tt.want {
			t.Errorf("Last(%d) returned %d lines, want %d", tt.n, len(got), tt.want)
		}
	}

	last := h.Last(1)
	if last[0] != "CALLER: my car was hit" {
		t.Errorf("unexpected newest line %q", last[0])
	}
	last[0] = "mutated"
	if h.Last(1)[0] == "mutated" {
		t.Error("Last must return a copy")
	}
}

func TestCallSession_Reset(t *testing.T) {
	s := New(intake.DefaultFrustrationThreshold, 10)
	firstID := s.ID

	s.History.AddCaller("hello")
	s.ConfirmRetries = 2
	s.MarkTransfer("technical_error")
	s.End()

	s.Reset()

	if s.ID == firstID {
		t.Error("reset should issue a new call ID")
	}
	if s.History.Len() != 0 || s.ConfirmRetries != 0 || s.Transfer || s.TransferReason != "" || s.Ended() {
		t.Errorf("session not reset: %+v", s)
	}
	if s.Machine.State() != intake.StateGreeting {
		t.Errorf("expected GREETING, got %s", s.Machine.State())
	}
}

func TestCallSession_EndStampsOnce(t *testing.T) {
	s := New(intake.DefaultFrustrationThreshold, 10)
	s.End()
	first := s.EndedAt
	time.Sleep(2 * time.Millisecond)
	s.End()
	if !s.EndedAt.Equal(first) {
		t.Error("End should keep the first timestamp")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := New(5, 10)
	b := New(5, 10)

	r.Put(a)
	r.Put(b)
	if r.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Count())
	}

	got, ok := r.Get(a.ID)
	if !ok || got != a {
		t.Fatal("expected to find session a")
	}

	r.Remove(a.ID)
	if _, ok := r.Get(a.ID); ok {
		t.Error("removed session should be gone")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 session, got %d", r.Count())
	}
}

func TestRegistry_Expiry(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	s := New(5, 10)
	r.Put(s)

	time.Sleep(40 * time.Millisecond)
	if _, ok := r.Get(s.ID); ok {
		t.Error("idle session should expire")
	}
}
