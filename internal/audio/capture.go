package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
)

var (
	// ErrCaptureStopped is returned by NextBlock once capture has stopped and the queue is empty
	ErrCaptureStopped = errors.New("audio capture stopped")

	// ErrNoBlock is returned by a non-blocking NextBlock when nothing is queued
	ErrNoBlock = errors.New("no audio block available")

	// ErrAlreadyActive is returned when Start is called on a running capture
	ErrAlreadyActive = errors.New("audio capture already active")
)

// BytesPerSample is fixed: capture is 16-bit little-endian PCM
const BytesPerSample = 2

// Block is one fixed-size slice of captured audio
type Block struct {
	Data []byte
	Seq  uint64
	At   time.Time
}

// Capture reads a device on its own goroutine and queues blocks in order.
// The queue is unbounded unless MaxQueuedBlocks is set, in which case the
// oldest block is dropped to make room.
type Capture struct {
	cfg    model.AudioConfig
	logger *slog.Logger

	mu       sync.Mutex
	queue    []Block
	active   bool
	device   Device
	done     chan struct{}
	stopOnce *sync.Once
	err      error
	seq      uint64

	notify  chan struct{}
	dropped atomic.Int64
	onDrop  func()
}

// NewCapture creates an idle capture stream
func NewCapture(cfg model.AudioConfig, logger *slog.Logger) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 8000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		cfg:    cfg,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// OnDrop registers a hook called each time the bounded queue drops a block
func (c *Capture) OnDrop(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDrop = fn
}

// BlockBytes is the size of one full block
func (c *Capture) BlockBytes() int {
	return c.cfg.BlockSize * c.cfg.Channels * BytesPerSample
}

// BlockDuration is the audio time covered by one full block
func (c *Capture) BlockDuration() time.Duration {
	return time.Duration(c.cfg.BlockSize) * time.Second / time.Duration(c.cfg.SampleRate)
}

// Start opens the device and begins capturing. It returns once the capture
// goroutine is running. Blocks left over from a previous run are discarded.
func (c *Capture) Start(ctx context.Context, device Device) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.queue = nil
	c.err = nil
	c.mu.Unlock()

	if err := device.Open(); err != nil {
		return fmt.Errorf("open audio device %s: %w", device.Name(), err)
	}

	done := make(chan struct{})
	once := &sync.Once{}

	c.mu.Lock()
	c.device = device
	c.done = done
	c.stopOnce = once
	c.active = true
	c.mu.Unlock()

	c.logger.Info("Audio capture started",
		slog.String("device", device.Name()),
		slog.Int("sample_rate", c.cfg.SampleRate),
		slog.Int("block_size", c.cfg.BlockSize))

	go c.run(ctx, device, done, once)
	return nil
}

func (c *Capture) run(ctx context.Context, device Device, done chan struct{}, once *sync.Once) {
	defer c.stop(device, done, once)

	var pace *time.Ticker
	if c.cfg.Realtime {
		pace = time.NewTicker(c.BlockDuration())
		defer pace.Stop()
	}

	for {
		buf := make([]byte, c.BlockBytes())
		n, err := io.ReadFull(device, buf)
		if n > 0 {
			c.push(buf[:n])
		}

		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.logger.Info("Audio input ended", slog.String("device", device.Name()))
				return
			}
			c.fail(fmt.Errorf("read audio device %s: %w", device.Name(), err))
			return
		}

		if pace != nil {
			select {
			case <-pace.C:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Capture) push(data []byte) {
	c.mu.Lock()
	c.seq++
	block := Block{Data: data, Seq: c.seq, At: time.Now()}

	var dropHook func()
	if limit := c.cfg.MaxQueuedBlocks; limit > 0 && len(c.queue) >= limit {
		c.queue[0] = Block{}
		c.queue = c.queue[1:]
		c.dropped.Add(1)
		dropHook = c.onDrop
	}
	c.queue = append(c.queue, block)
	c.mu.Unlock()

	if dropHook != nil {
		dropHook()
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Capture) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.logger.Error("Audio capture failed", slog.String("error", err.Error()))
}

// Stop halts capture and closes the device exactly once. Blocked readers wake
// up; blocks already queued can still be read. Safe to call repeatedly.
func (c *Capture) Stop() {
	c.mu.Lock()
	device, done, once := c.device, c.done, c.stopOnce
	c.mu.Unlock()
	if once == nil {
		return
	}
	c.stop(device, done, once)
}

// stop ends one capture run; a later run has its own once and done channel
func (c *Capture) stop(device Device, done chan struct{}, once *sync.Once) {
	once.Do(func() {
		c.mu.Lock()
		if c.done == done {
			c.active = false
		}
		close(done)
		c.mu.Unlock()

		if err := device.Close(); err != nil {
			c.logger.Warn("Closing audio device failed",
				slog.String("device", device.Name()),
				slog.String("error", err.Error()))
		}
		c.logger.Info("Audio capture stopped", slog.Int64("dropped_blocks", c.dropped.Load()))
	})
}

// NextBlock returns the oldest queued block. In blocking mode it waits for a
// block, ctx cancellation, or stop; otherwise it returns ErrNoBlock at once.
func (c *Capture) NextBlock(ctx context.Context, blocking bool) (Block, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			b := c.queue[0]
			c.queue[0] = Block{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return b, nil
		}
		active := c.active
		done := c.done
		c.mu.Unlock()

		if !active {
			return Block{}, ErrCaptureStopped
		}
		if !blocking {
			return Block{}, ErrNoBlock
		}

		select {
		case <-ctx.Done():
			return Block{}, ctx.Err()
		case <-c.notify:
		case <-done:
		}
	}
}

// IsActive reports whether the capture goroutine is running
func (c *Capture) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Queued reports how many blocks wait to be read
func (c *Capture) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Dropped reports how many blocks the bounded queue discarded
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Err returns the device failure that ended capture, if any
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
