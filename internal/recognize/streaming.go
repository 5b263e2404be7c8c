package recognize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppiankov/claimvoice/internal/model"
)

const (
	defaultURL      = "wss://api.cartesia.ai/stt/websocket"
	defaultModel    = "ink-whisper"
	defaultLanguage = "en"
	apiVersion      = "2025-04-16"
)

// Config configures a streaming recognizer connection
type Config struct {
	URL        string
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Timeout    time.Duration // handshake and finalize wait
}

// ConfigFromModel maps the file configuration onto Config
func ConfigFromModel(rc model.RecognizerConfig, sampleRate int) Config {
	return Config{
		URL:        rc.URL,
		APIKey:     rc.APIKey,
		Model:      rc.Model,
		Language:   rc.Language,
		SampleRate: sampleRate,
		Timeout:    rc.Timeout,
	}
}

// StreamingRecognizer streams PCM over a websocket and receives transcript
// deltas on a read goroutine. Feed never waits for the server.
type StreamingRecognizer struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending []model.TranscriptEvent
	err     error

	seq     atomic.Uint64
	flushed chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

type serverMessage struct {
	Type    string `json:"type"` // transcript, flush_done, done, error
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Dial opens a recognition session
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*StreamingRecognizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	endpoint, err := buildURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("X-API-Key", cfg.APIKey)
	}
	headers.Set("Cartesia-Version", apiVersion)

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%w: websocket connect (status %d): %s", ErrRecognition, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%w: websocket connect: %v", ErrRecognition, err)
	}

	r := &StreamingRecognizer{
		conn:    conn,
		logger:  logger,
		timeout: cfg.Timeout,
		flushed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.readLoop()

	logger.Info("Recognizer connected", slog.String("url", redact(endpoint)))
	return r, nil
}

func buildURL(cfg Config) (string, error) {
	raw := cfg.URL
	if raw == "" {
		raw = defaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse recognizer URL: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	language := cfg.Language
	if language == "" {
		language = defaultLanguage
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	q := u.Query()
	q.Set("model", modelName)
	q.Set("language", language)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	if cfg.APIKey != "" {
		q.Set("api_key", cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (r *StreamingRecognizer) readLoop() {
	defer close(r.done)

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if !r.closed.Load() {
				r.fail(fmt.Errorf("%w: connection lost: %v", ErrRecognition, err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("Ignoring unparseable recognizer message", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type {
		case "transcript":
			ev := model.TranscriptEvent{
				Text:  msg.Text,
				Final: msg.IsFinal,
				Seq:   r.seq.Add(1),
				At:    time.Now(),
			}
			r.mu.Lock()
			r.pending = append(r.pending, ev)
			r.mu.Unlock()

		case "flush_done":
			select {
			case r.flushed <- struct{}{}:
			default:
			}

		case "done":
			if !r.closed.Load() {
				r.fail(fmt.Errorf("%w: session closed by server", ErrRecognition))
			}
			return

		case "error":
			reason := msg.Error
			if reason == "" {
				reason = msg.Message
			}
			r.fail(fmt.Errorf("%w: %s", ErrRecognition, reason))
			return
		}
	}
}

func (r *StreamingRecognizer) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.logger.Error("Recognizer failed", slog.String("error", err.Error()))
}

// Err returns the failure that ended the session, if any
func (r *StreamingRecognizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *StreamingRecognizer) write(messageType int, data []byte) error {
	if r.closed.Load() {
		return fmt.Errorf("%w: recognizer closed", ErrRecognition)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: send: %v", ErrRecognition, err)
	}
	return nil
}

// Feed sends the block and returns the oldest final received so far, or the
// newest partial when no final is pending. An empty block only polls.
func (r *StreamingRecognizer) Feed(ctx context.Context, block []byte) (model.TranscriptEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.TranscriptEvent{}, err
	}
	if err := r.Err(); err != nil {
		return model.TranscriptEvent{}, err
	}
	if len(block) > 0 {
		if err := r.write(websocket.BinaryMessage, block); err != nil {
			return model.TranscriptEvent{}, err
		}
	}
	return r.take(), nil
}

// take removes the next result from the pending queue. Partials older than
// the returned event are superseded and discarded.
func (r *StreamingRecognizer) take() model.TranscriptEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ev := range r.pending {
		if ev.Final {
			r.pending = append(r.pending[:0], r.pending[i+1:]...)
			return ev
		}
	}
	if n := len(r.pending); n > 0 {
		ev := r.pending[n-1]
		r.pending = r.pending[:0]
		return ev
	}
	return model.TranscriptEvent{}
}

// Finalize asks the server to commit the current utterance, waits for the
// acknowledgement, and returns every pending final in order.
func (r *StreamingRecognizer) Finalize(ctx context.Context) ([]model.TranscriptEvent, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := r.write(websocket.TextMessage, []byte("finalize")); err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-r.flushed:
	case <-r.done:
	case <-timer.C:
		r.logger.Warn("Recognizer finalize timed out", slog.Duration("timeout", r.timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	var finals []model.TranscriptEvent
	for _, ev := range r.pending {
		if ev.Final {
			finals = append(finals, ev)
		}
	}
	r.pending = nil
	r.mu.Unlock()

	if len(finals) == 0 {
		if err := r.Err(); err != nil {
			return nil, err
		}
	}
	return finals, nil
}

// Reset drops any results not yet consumed
func (r *StreamingRecognizer) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	select {
	case <-r.flushed:
	default:
	}
	return r.Err()
}

// Close ends the session; safe to call more than once
func (r *StreamingRecognizer) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	r.writeMu.Lock()
	_ = r.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	_ = r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()

	err := r.conn.Close()
	<-r.done
	return err
}
