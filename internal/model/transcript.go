package model

import "time"

// TranscriptEvent is one recognition result.
// Finals are committed and never revised; partials are advisory only.
type TranscriptEvent struct {
	Text  string    `json:"text"`
	Final bool      `json:"final"`
	Seq   uint64    `json:"seq"` // Monotonic per recognizer
	At    time.Time `json:"at"`
}

// IsEmpty reports whether the event carries no recognized speech
func (e TranscriptEvent) IsEmpty() bool {
	for _, r := range e.Text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
