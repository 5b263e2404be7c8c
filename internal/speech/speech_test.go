package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppiankov/claimvoice/internal/cache"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeElevenLabs answers a flushed text message with two audio chunks
func fakeElevenLabs(t *testing.T, fail string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("unexpected output format %q", r.URL.Query().Get("output_format"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if flush, _ := msg["flush"].(bool); !flush {
				continue
			}
			if fail != "" {
				_ = conn.WriteJSON(map[string]any{"error": fail, "message": "quota"})
				return
			}
			for _, chunk := range [][]byte{{1, 2}, {3, 4}} {
				_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk)})
			}
			_ = conn.WriteJSON(map[string]any{"isFinal": true})
			return
		}
	}))
}

func newTestSynth(t *testing.T, srv *httptest.Server, apiKey string) *ElevenLabsSynthesizer {
	t.Helper()
	s, err := NewElevenLabs(ElevenLabsConfig{
		APIKey:  apiKey,
		VoiceID: "voice",
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/{voice_id}/stream-input",
		Timeout: 2 * time.Second,
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	return s
}

func TestElevenLabs_CollectsChunks(t *testing.T) {
	srv := fakeElevenLabs(t, "")
	defer srv.Close()

	a, err := newTestSynth(t, srv, "key").Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(a.Data) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("unexpected audio %v", a.Data)
	}
	if a.SampleRate != 16000 || a.Format != FormatPCM16 {
		t.Errorf("unexpected format %+v", a)
	}
}

func TestElevenLabs_Errors(t *testing.T) {
	srv := fakeElevenLabs(t, "quota_exceeded")
	defer srv.Close()

	if _, err := newTestSynth(t, srv, "key").Synthesize(context.Background(), "Hello"); !errors.Is(err, ErrSynthesis) {
		t.Errorf("expected ErrSynthesis for server error, got %v", err)
	}
	_, err := newTestSynth(t, srv, "wrong").Synthesize(context.Background(), "Hello")
	if !errors.Is(err, ErrSynthesis) || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected ErrSynthesis with status, got %v", err)
	}
}

func TestElevenLabs_EmptyTextSkipsNetwork(t *testing.T) {
	s, err := NewElevenLabs(ElevenLabsConfig{APIKey: "key", VoiceID: "v", URL: "ws://127.0.0.1:1"}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Synthesize(context.Background(), "   ")
	if err != nil || len(a.Data) != 0 {
		t.Errorf("expected empty audio without error, got %v, %v", a, err)
	}
}

func TestNewElevenLabs_RequiresCredentials(t *testing.T) {
	if _, err := NewElevenLabs(ElevenLabsConfig{VoiceID: "v"}, nil); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k"}, nil); err == nil {
		t.Error("expected error without voice id")
	}
}

type countingSynth struct {
	calls atomic.Int32
	err   error
}

func (c *countingSynth) Synthesize(ctx context.Context, text string) (*Audio, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Audio{Format: FormatPCM16, SampleRate: 22050, Data: []byte(text)}, nil
}

func TestCachedSynthesizer(t *testing.T) {
	inner := &countingSynth{}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCached(inner, store, "voice", "model", 0, quietLogger())

	first, err := s.Synthesize(context.Background(), "Please hold.")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Synthesize(context.Background(), "Please hold.  ")
	if err != nil {
		t.Fatal(err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("expected one provider call, got %d", inner.calls.Load())
	}
	if string(second.Data) != string(first.Data) || second.SampleRate != 22050 {
		t.Errorf("cached audio differs: %+v vs %+v", second, first)
	}

	if _, err := s.Synthesize(context.Background(), "Something else"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("different text must miss the cache, got %d calls", inner.calls.Load())
	}
}

func TestCachedSynthesizer_CorruptEntryResynthesizes(t *testing.T) {
	inner := &countingSynth{}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	_ = store.Set(cache.AudioKey("voice", "model", "hi"), []byte("garbage"), 0)

	s := NewCached(inner, store, "voice", "model", 0, quietLogger())
	a, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Data) != "hi" || inner.calls.Load() != 1 {
		t.Errorf("expected fresh synthesis, got %v after %d calls", a.Data, inner.calls.Load())
	}
}

func TestCachedSynthesizer_ErrorsAreNotCached(t *testing.T) {
	inner := &countingSynth{err: ErrSynthesis}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCached(inner, store, "voice", "model", 0, quietLogger())

	if _, err := s.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("failed synthesis must not be cached")
	}
}

func TestSilentSynthesizer(t *testing.T) {
	s := SilentSynthesizer{SampleRate: 16000, PerWord: 100 * time.Millisecond}
	a, err := s.Synthesize(context.Background(), "  three  short words ")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Duration(); got != 300*time.Millisecond {
		t.Errorf("expected 300ms, got %v", got)
	}
}

func TestAudioDuration_Nil(t *testing.T) {
	var a *Audio
	if a.Duration() != 0 {
		t.Error("nil audio has no duration")
	}
}
