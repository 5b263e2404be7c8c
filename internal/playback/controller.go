// Package playback speaks assistant utterances without blocking the dialogue loop.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/claimvoice/internal/speech"
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("playback controller closed")

// Controller runs at most one utterance at a time on its own goroutine.
// The busy flag has one writer (the playback goroutine) and many readers.
type Controller struct {
	synth  speech.Synthesizer
	player Player
	logger *slog.Logger

	mu     sync.Mutex
	busy   bool
	closed bool
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pollInterval time.Duration
	onFailure    func(error)
}

// New creates a controller. A nil player discards audio.
func New(synth speech.Synthesizer, player Player, logger *slog.Logger) *Controller {
	if player == nil {
		player = DiscardPlayer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		synth:        synth,
		player:       player,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
	}
}

// SetPollInterval sets how often WaitIdle checks the busy flag
func (c *Controller) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// OnFailure registers a hook for synthesis or playback failures
func (c *Controller) OnFailure(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Start returns immediately and speaks text in the background. The busy flag
// is set before Start returns and cleared on every exit path of the goroutine.
// Starting while busy cancels the utterance in flight.
func (c *Controller) Start(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.busy = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.play(playCtx, cancel, gen, text)
	return nil
}

func (c *Controller) play(ctx context.Context, cancel context.CancelFunc, gen uint64, text string) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		// A newer Start owns the flag
		if c.gen == gen {
			c.busy = false
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	started := time.Now()
	a, err := c.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("Synthesis cancelled")
			return
		}
		c.fail("Speech synthesis failed", err)
		return
	}
	if err := c.player.Play(ctx, a); err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("Playback cancelled")
			return
		}
		c.fail("Audio playback failed", err)
		return
	}

	c.logger.Debug("Utterance played",
		slog.Duration("audio", a.Duration()),
		slog.Duration("elapsed", time.Since(started)))
}

func (c *Controller) fail(msg string, err error) {
	c.logger.Error(msg, slog.String("error", err.Error()))
	c.mu.Lock()
	hook := c.onFailure
	c.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

// IsBusy reports whether an utterance is being synthesized or played
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// WaitIdle polls IsBusy until it is false or ctx ends
func (c *Controller) WaitIdle(ctx context.Context) error {
	if !c.IsBusy() {
		return nil
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !c.IsBusy() {
				return nil
			}
		}
	}
}

// Close cancels in-flight playback and waits for the goroutine to exit.
// Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
