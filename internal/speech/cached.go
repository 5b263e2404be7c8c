package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ppiankov/claimvoice/internal/audio"
	"github.com/ppiankov/claimvoice/internal/cache"
)

// CachedSynthesizer serves repeated utterances from a cache. Entries are
// stored as WAV so the sample rate survives the round trip.
type CachedSynthesizer struct {
	inner   Synthesizer
	cache   cache.Cache
	voiceID string
	modelID string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCached wraps inner. voiceID and modelID scope the cache keys.
func NewCached(inner Synthesizer, c cache.Cache, voiceID, modelID string, ttl time.Duration, logger *slog.Logger) *CachedSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSynthesizer{
		inner:   inner,
		cache:   c,
		voiceID: voiceID,
		modelID: modelID,
		ttl:     ttl,
		logger:  logger,
	}
}

// Synthesize returns cached audio when available, otherwise synthesizes and stores it
func (s *CachedSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	key := cache.AudioKey(s.voiceID, s.modelID, text)

	if data, ok := s.cache.Get(key); ok {
		a, err := decodeEntry(data)
		if err == nil {
			s.logger.Debug("Synthesis cache hit", slog.String("key", key[len(key)-12:]))
			return a, nil
		}
		s.logger.Warn("Dropping unreadable synthesis cache entry", slog.String("error", err.Error()))
		_ = s.cache.Delete(key)
	}

	a, err := s.inner.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(a.Data) == 0 {
		return a, nil
	}

	entry, err := encodeEntry(a)
	if err != nil {
		s.logger.Warn("Skipping synthesis cache store", slog.String("error", err.Error()))
		return a, nil
	}
	if err := s.cache.Set(key, entry, s.ttl); err != nil {
		s.logger.Warn("Failed to store synthesized audio", slog.String("error", err.Error()))
	}
	return a, nil
}

func encodeEntry(a *Audio) ([]byte, error) {
	if a.Format != FormatPCM16 {
		return nil, fmt.Errorf("cannot cache %s audio", a.Format)
	}
	var buf bytes.Buffer
	if err := audio.WriteWAVHeader(&buf, a.SampleRate, 1, uint32(len(a.Data))); err != nil {
		return nil, err
	}
	buf.Write(a.Data)
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Audio, error) {
	r := bytes.NewReader(data)
	format, size, err := audio.ReadWAVHeader(r)
	if err != nil {
		return nil, err
	}
	pcm := make([]byte, size)
	if _, err := io.ReadFull(r, pcm); err != nil {
		return nil, fmt.Errorf("truncated cache entry: %w", err)
	}
	return &Audio{Format: FormatPCM16, SampleRate: int(format.SampleRate), Data: pcm}, nil
}
