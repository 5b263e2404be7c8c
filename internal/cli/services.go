package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/claimvoice/internal/cache"
	"github.com/ppiankov/claimvoice/internal/llm"
	"github.com/ppiankov/claimvoice/internal/metrics"
	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/orchestrator"
	"github.com/ppiankov/claimvoice/internal/playback"
	"github.com/ppiankov/claimvoice/internal/session"
	"github.com/ppiankov/claimvoice/internal/speech"
	"github.com/ppiankov/claimvoice/internal/util"
	"github.com/ppiankov/claimvoice/internal/webhook"
	"github.com/ppiankov/claimvoice/internal/worker"
)

// services are the collaborators shared by every call in one process
type services struct {
	cfg     *model.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *worker.Limiter

	understanding llm.Client
	synth         speech.Synthesizer
	sink          webhook.Sink
	registry      *session.Registry
	audioCache    *cache.LayeredCache
}

// newServices builds the shared stack. With silent set, speech is replaced
// by timed silence and no voice provider is contacted.
func newServices(cfg *model.Config, logger *slog.Logger, silent bool) (*services, error) {
	if err := requireLLMKey(cfg); err != nil {
		return nil, err
	}

	s := &services{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		limiter:  worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		registry: session.NewRegistry(cfg.Dialogue.CallTimeout),
	}

	client, err := llm.NewClient(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create understanding client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("no understanding provider configured (set llm.provider)")
	}
	s.understanding = llm.RateLimited(client, s.limiter)

	if err := s.buildSynthesizer(silent); err != nil {
		return nil, err
	}

	if cfg.Webhook.URL != "" {
		sink := webhook.NewHTTPSink(cfg.Webhook.URL, cfg.Webhook.Token, cfg.Webhook.Timeout)
		sink.HTTP = util.NewHTTPClient(cfg.Webhook.Timeout, cfg.LLM.HTTPProxy, cfg.LLM.HTTPSProxy)
		sink.Limiter = s.limiter
		sink.Logger = logger
		s.sink = sink
	} else {
		logger.Warn("No webhook configured, tickets will not be filed")
	}

	return s, nil
}

func (s *services) buildSynthesizer(silent bool) error {
	provider := strings.ToLower(s.cfg.Speech.Provider)
	if silent || provider == "" || provider == "none" {
		s.synth = speech.SilentSynthesizer{SampleRate: s.cfg.Audio.SampleRate, PerWord: 250 * time.Millisecond}
		return nil
	}
	if provider != "elevenlabs" {
		return fmt.Errorf("unknown speech provider: %s (supported: elevenlabs, none)", s.cfg.Speech.Provider)
	}

	voice, err := speech.NewElevenLabs(speech.ElevenLabsConfigFromModel(s.cfg.Speech, s.cfg.Audio.SampleRate), s.logger)
	if err != nil {
		return fmt.Errorf("create synthesizer: %w", err)
	}
	if !s.cfg.Cache.Enabled {
		s.synth = voice
		return nil
	}

	s.audioCache = cache.NewLayeredCache(s.cfg.Cache.MemoryTTL, s.cfg.Cache.Dir, s.cfg.Cache.DiskTTL)
	s.synth = speech.NewCached(voice, s.audioCache, voice.VoiceID(), voice.ModelID(), s.cfg.Cache.DiskTTL, s.logger)
	return nil
}

// deps wires one call's collaborators around player. Each call gets its own
// playback controller.
func (s *services) deps(player playback.Player) orchestrator.Deps {
	ctrl := playback.New(s.synth, player, s.logger)
	if s.cfg.Dialogue.BusyPollInterval > 0 {
		ctrl.SetPollInterval(s.cfg.Dialogue.BusyPollInterval)
	}
	ctrl.OnFailure(func(error) { s.metrics.RecordPlaybackFailure() })

	return orchestrator.Deps{
		Understanding: s.understanding,
		Playback:      ctrl,
		Webhook:       s.sink,
		Metrics:       s.metrics,
		Registry:      s.registry,
	}
}

// logCacheStats reports synthesis cache effectiveness, if a cache is in use
func (s *services) logCacheStats() {
	if s.audioCache == nil {
		return
	}
	hits, misses := s.audioCache.Stats()
	s.logger.Debug("Speech cache", slog.Int64("hits", hits), slog.Int64("misses", misses))
}

// openPlayer resolves speech.output: "" discards, "-" writes PCM to stdout,
// anything else is a file path. The returned close func is never nil.
func openPlayer(output string, realtime bool) (playback.Player, func() error, error) {
	noop := func() error { return nil }
	switch output {
	case "":
		return playback.DiscardPlayer{Realtime: realtime}, noop, nil
	case "-":
		return playback.NewWriterPlayer(os.Stdout, realtime), noop, nil
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, nil, fmt.Errorf("open speech output: %w", err)
	}
	return playback.NewWriterPlayer(f, realtime), f.Close, nil
}

// serveMetrics exposes the registry on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// printEvents renders call events until the channel closes
func printEvents(w io.Writer, events <-chan orchestrator.Event, asJSON bool) {
	enc := json.NewEncoder(w)
	for ev := range events {
		if asJSON {
			_ = enc.Encode(ev)
			continue
		}
		switch ev.Type {
		case orchestrator.EventAssistantMessage:
			fmt.Fprintf(w, "agent:  %s  [frustration %.1f/10]\n", ev.Text, ev.Frustration)
		case orchestrator.EventCaption:
			fmt.Fprintf(w, "        … %s\n", ev.Text)
		case orchestrator.EventUserMessage:
			fmt.Fprintf(w, "caller: %s\n", ev.Text)
		case orchestrator.EventStateChange:
			fmt.Fprintf(w, "        state %s → %s\n", ev.From, ev.To)
		case orchestrator.EventTransfer:
			fmt.Fprintf(w, "⚠️  transfer to specialist: %s\n", ev.Reason)
		case orchestrator.EventCallComplete:
			fmt.Fprintf(w, "✓ claim complete\n")
		case orchestrator.EventTicketPosted:
			if ev.Ticket != nil {
				fmt.Fprintf(w, "✓ ticket posted (status %d)\n", ev.Ticket.StatusCode)
			}
		case orchestrator.EventCallEnded:
			fmt.Fprintf(w, "call ended: %s\n", ev.Reason)
		}
	}
}

// printSummary renders the end-of-call summary block on stderr
func printSummary(w io.Writer, s *model.CallSummary) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Call Summary\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Call:         %s\n", s.CallID)
	fmt.Fprintf(w, "  Final state:  %s\n", s.FinalState)
	fmt.Fprintf(w, "  End reason:   %s\n", s.EndReason)
	fmt.Fprintf(w, "  Turns:        %d\n", s.Turns)
	fmt.Fprintf(w, "  Frustration:  %.1f/10\n", s.Frustration)
	if s.Transfer {
		fmt.Fprintf(w, "  Transfer:     %s\n", s.TransferReason)
	}
	fmt.Fprintf(w, "  Ticket:       %v\n", s.TicketPosted)
	fmt.Fprintf(w, "  Duration:     %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
}
