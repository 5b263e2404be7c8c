package session

import "sync"

const (
	// DefaultHistorySize bounds the conversation window kept per call
	DefaultHistorySize = 20

	CallerPrefix    = "CALLER: "
	AssistantPrefix = "ASSISTANT: "
)

// History is a bounded sliding window of dialogue lines, oldest first
type History struct {
	mu    sync.RWMutex
	lines []string
	size  int
}

// NewHistory creates a window holding at most size lines
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		lines: make([]string, 0, size),
		size:  size,
	}
}

// AddCaller records a committed caller utterance
func (h *History) AddCaller(text string) {
	h.add(CallerPrefix + text)
}

// AddAssistant records an utterance the assistant spoke
func (h *History) AddAssistant(text string) {
	h.add(AssistantPrefix + text)
}

func (h *History) add(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.lines) == h.size {
		copy(h.lines, h.lines[1:])
		h.lines = h.lines[:h.size-1]
	}
	h.lines = append(h.lines, line)
}

// Last returns a copy of the newest n lines, oldest first
func (h *History) Last(n int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(h.lines) {
		n = len(h.lines)
	}
	out := make([]string, n)
	copy(out, h.lines[len(h.lines)-n:])
	return out
}

// Lines returns a copy of the whole window
func (h *History) Lines() []string {
	return h.Last(h.Len())
}

// Len reports how many lines are held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lines)
}

// Clear empties the window
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = h.lines[:0]
}
