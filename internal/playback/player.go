package playback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ppiankov/claimvoice/internal/speech"
)

// Player renders synthesized audio. Play blocks until the audio has been
// rendered or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, a *speech.Audio) error
}

// WriterPlayer writes PCM to w, such as an output file or the stdin of aplay.
// With Realtime set it paces writes at playback speed so busy reflects audible time.
type WriterPlayer struct {
	w        io.Writer
	Realtime bool
	mu       sync.Mutex
}

// NewWriterPlayer creates a player writing to w
func NewWriterPlayer(w io.Writer, realtime bool) *WriterPlayer {
	return &WriterPlayer{w: w, Realtime: realtime}
}

const chunkDuration = 100 * time.Millisecond

// Play writes the audio in chunks, stopping early when ctx is cancelled
func (p *WriterPlayer) Play(ctx context.Context, a *speech.Audio) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a == nil || len(a.Data) == 0 {
		return nil
	}

	chunk := len(a.Data)
	if p.Realtime && a.SampleRate > 0 {
		chunk = int(chunkDuration.Seconds()*float64(a.SampleRate)) * 2
	}

	var tick *time.Ticker
	if p.Realtime {
		tick = time.NewTicker(chunkDuration)
		defer tick.Stop()
	}

	for off := 0; off < len(a.Data); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunk, len(a.Data))
		if _, err := p.w.Write(a.Data[off:end]); err != nil {
			return err
		}
		if tick != nil && end < len(a.Data) {
			select {
			case <-tick.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// DiscardPlayer drops audio. With Realtime set it still waits for the audio
// duration so the busy flag behaves as it would on a speaker.
type DiscardPlayer struct {
	Realtime bool
}

// Play waits for the audio duration when Realtime is set
func (p DiscardPlayer) Play(ctx context.Context, a *speech.Audio) error {
	if !p.Realtime {
		return nil
	}
	d := a.Duration()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
