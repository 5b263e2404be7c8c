// Package recognize turns captured audio into transcript events.
package recognize

import (
	"context"
	"errors"

	"github.com/ppiankov/claimvoice/internal/model"
)

// ErrRecognition marks a failure the session cannot recover from
var ErrRecognition = errors.New("speech recognition failed")

// Recognizer converts audio blocks into transcripts. It has a single consumer
// that feeds blocks in capture order.
type Recognizer interface {
	// Feed submits one block and returns the next available result. A zero
	// event (empty Text) means nothing new was recognized.
	Feed(ctx context.Context, block []byte) (model.TranscriptEvent, error)

	// Finalize commits the current utterance and returns the finals it produced
	Finalize(ctx context.Context) ([]model.TranscriptEvent, error)

	// Reset discards recognition state at call start or an utterance boundary
	Reset(ctx context.Context) error

	Close() error
}
