package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/claimvoice/internal/audio"
	"github.com/ppiankov/claimvoice/internal/model"
)

// BlockSource is the capture side of the pump
type BlockSource interface {
	NextBlock(ctx context.Context, blocking bool) (audio.Block, error)
	Err() error
}

// Listen pulls blocks from src, feeds them to rec, and forwards non-empty
// transcripts to out in order. It closes out when it returns. When capture
// ends cleanly the last utterance is finalized before returning nil.
func Listen(ctx context.Context, src BlockSource, rec Recognizer, out chan<- model.TranscriptEvent, logger *slog.Logger) error {
	defer close(out)
	if logger == nil {
		logger = slog.Default()
	}

	if err := rec.Reset(ctx); err != nil {
		return fmt.Errorf("reset recognizer: %w", err)
	}

	forward := func(ev model.TranscriptEvent) error {
		if ev.IsEmpty() {
			return nil
		}
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var blocks int
	for {
		block, err := src.NextBlock(ctx, true)
		if errors.Is(err, audio.ErrCaptureStopped) {
			if capErr := src.Err(); capErr != nil {
				return fmt.Errorf("%w: %v", ErrRecognition, capErr)
			}
			logger.Info("Capture ended, finalizing utterance", slog.Int("blocks", blocks))
			finals, err := rec.Finalize(ctx)
			if err != nil {
				return err
			}
			for _, ev := range finals {
				if err := forward(ev); err != nil {
					return err
				}
			}
			return nil
		}
		if err != nil {
			return err
		}

		blocks++
		ev, err := rec.Feed(ctx, block.Data)
		if err != nil {
			return err
		}
		if err := forward(ev); err != nil {
			return err
		}
	}
}
