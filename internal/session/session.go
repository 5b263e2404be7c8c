package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/claimvoice/internal/intake"
)

// CallSession holds everything that lives for exactly one call
type CallSession struct {
	ID      string
	Machine *intake.Machine
	History *History

	// ConfirmRetries counts ambiguous answers to the claim summary
	ConfirmRetries int

	Transfer       bool
	TransferReason string
	Complete       bool

	StartedAt time.Time
	EndedAt   time.Time
}

// New creates a session in GREETING
func New(threshold float64, historySize int) *CallSession {
	return &CallSession{
		ID:        uuid.NewString(),
		Machine:   intake.NewMachine(threshold),
		History:   NewHistory(historySize),
		StartedAt: time.Now(),
	}
}

// Reset restores the initial state so the session can take a new call
func (s *CallSession) Reset() {
	s.ID = uuid.NewString()
	s.Machine.Reset()
	s.History.Clear()
	s.ConfirmRetries = 0
	s.Transfer = false
	s.TransferReason = ""
	s.Complete = false
	s.StartedAt = time.Now()
	s.EndedAt = time.Time{}
}

// MarkTransfer records a handoff to a human
func (s *CallSession) MarkTransfer(reason string) {
	s.Transfer = true
	s.TransferReason = reason
}

// End stamps the end time once
func (s *CallSession) End() {
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now()
	}
}

// Ended reports whether End was called
func (s *CallSession) Ended() bool {
	return !s.EndedAt.IsZero()
}

// Duration is the call length so far, or the final length once ended
func (s *CallSession) Duration() time.Duration {
	if s.Ended() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}
