package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppiankov/claimvoice/internal/model"
)

const (
	elevenLabsWSBase       = "wss://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	defaultSampleRate      = 16000
)

// ElevenLabsConfig configures the stream-input synthesizer
type ElevenLabsConfig struct {
	APIKey     string
	VoiceID    string
	Model      string
	URL        string // base URL; "{voice_id}" is substituted when present
	SampleRate int
	Timeout    time.Duration
}

// ElevenLabsConfigFromModel maps the file configuration onto ElevenLabsConfig
func ElevenLabsConfigFromModel(sc model.SpeechConfig, sampleRate int) ElevenLabsConfig {
	return ElevenLabsConfig{
		APIKey:     sc.APIKey,
		VoiceID:    sc.VoiceID,
		Model:      sc.Model,
		URL:        sc.URL,
		SampleRate: sampleRate,
	}
}

// ElevenLabsSynthesizer opens one stream-input websocket per utterance and
// collects base64 audio chunks until the final message.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	logger *slog.Logger
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewElevenLabs creates a synthesizer; the API key and voice are required
func NewElevenLabs(cfg ElevenLabsConfig, logger *slog.Logger) (*ElevenLabsSynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	if cfg.Model == "" {
		cfg.Model = elevenLabsDefaultModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsSynthesizer{cfg: cfg, logger: logger}, nil
}

// VoiceID identifies the voice for cache keys
func (e *ElevenLabsSynthesizer) VoiceID() string { return e.cfg.VoiceID }

// ModelID identifies the model for cache keys
func (e *ElevenLabsSynthesizer) ModelID() string { return e.cfg.Model }

func (e *ElevenLabsSynthesizer) wsURL() (string, error) {
	base := e.cfg.URL
	if strings.TrimSpace(base) == "" {
		base = elevenLabsWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(e.cfg.VoiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(e.cfg.VoiceID) + "/stream-input"
	}
	q := u.Query()
	q.Set("model_id", e.cfg.Model)
	q.Set("output_format", "pcm_"+strconv.Itoa(e.cfg.SampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize streams text and returns the collected PCM
func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Audio{Format: FormatPCM16, SampleRate: e.cfg.SampleRate}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	wsURL, err := e.wsURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.cfg.APIKey)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%w: connect (status %d): %s", ErrSynthesis, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%w: connect: %v", ErrSynthesis, err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	messages := []map[string]any{
		{"text": " ", "voice_settings": map[string]any{"stability": 0.5, "similarity_boost": 0.8}},
		{"text": text + " ", "flush": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return nil, fmt.Errorf("%w: send text: %v", ErrSynthesis, err)
		}
	}

	started := time.Now()
	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrSynthesis, ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return nil, fmt.Errorf("%w: read: %v", ErrSynthesis, err)
		}

		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("%w: %s %s", ErrSynthesis, msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("%w: decode audio chunk: %v", ErrSynthesis, err)
			}
			pcm = append(pcm, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}

	e.logger.Debug("Synthesized utterance",
		slog.Int("chars", len(text)),
		slog.Int("bytes", len(pcm)),
		slog.Duration("elapsed", time.Since(started)))

	return &Audio{Format: FormatPCM16, SampleRate: e.cfg.SampleRate, Data: pcm}, nil
}
