package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/claimvoice/internal/intake"
	"github.com/ppiankov/claimvoice/internal/llm"
	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/orchestrator"
	"github.com/ppiankov/claimvoice/internal/playback"
	"github.com/ppiankov/claimvoice/internal/session"
	"github.com/ppiankov/claimvoice/internal/speech"
	"github.com/spf13/viper"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterDefaults_EnvOverridesNestedKeys(t *testing.T) {
	t.Setenv("CLAIMVOICE_DIALOGUE_FRUSTRATION_THRESHOLD", "7")
	t.Setenv("CLAIMVOICE_WEBHOOK_TOKEN", "secret")
	t.Setenv("CLAIMVOICE_AUDIO_MAX_QUEUED_BLOCKS", "12")

	v := viper.New()
	v.SetEnvPrefix("CLAIMVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := registerDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatalf("registerDefaults: %v", err)
	}

	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.Dialogue.FrustrationThreshold != 7 {
		t.Errorf("threshold = %v, want 7", cfg.Dialogue.FrustrationThreshold)
	}
	if cfg.Webhook.Token != "secret" {
		t.Errorf("webhook token = %q, want secret", cfg.Webhook.Token)
	}
	if cfg.Audio.MaxQueuedBlocks != 12 {
		t.Errorf("max queued blocks = %d, want 12", cfg.Audio.MaxQueuedBlocks)
	}
	// Untouched values keep their defaults, durations included
	if cfg.Recognizer.Timeout != 10*time.Second {
		t.Errorf("recognizer timeout = %v, want 10s", cfg.Recognizer.Timeout)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", cfg.Audio.SampleRate)
	}
}

func TestApplyProviderKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("ELEVENLABS_API_KEY", "xi")
	t.Setenv("CARTESIA_API_KEY", "sk-cartesia")

	tests := []struct {
		provider string
		key      string
		baseURL  string
	}{
		{"openai", "sk-openai", ""},
		{"anthropic", "sk-ant", ""},
		{"claude", "sk-ant", ""},
		{"ollama", "", "http://gpu-box:11434"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := model.DefaultConfig()
			cfg.LLM.Provider = tt.provider
			applyProviderKeys(cfg)

			if cfg.LLM.APIKey != tt.key {
				t.Errorf("api key = %q, want %q", cfg.LLM.APIKey, tt.key)
			}
			if cfg.LLM.BaseURL != tt.baseURL {
				t.Errorf("base url = %q, want %q", cfg.LLM.BaseURL, tt.baseURL)
			}
			if cfg.Speech.APIKey != "xi" || cfg.Recognizer.APIKey != "sk-cartesia" {
				t.Errorf("voice keys not applied: speech=%q recognizer=%q", cfg.Speech.APIKey, cfg.Recognizer.APIKey)
			}
		})
	}
}

func TestApplyProviderKeys_ConfiguredKeyWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "from-file"
	applyProviderKeys(cfg)
	if cfg.LLM.APIKey != "from-file" {
		t.Errorf("api key = %q, want from-file", cfg.LLM.APIKey)
	}
}

func TestRequireLLMKey(t *testing.T) {
	tests := []struct {
		provider string
		key      string
		wantErr  bool
	}{
		{"openai", "", true},
		{"openai", "sk", false},
		{"anthropic", "", true},
		{"ollama", "", false},
	}
	for _, tt := range tests {
		cfg := model.DefaultConfig()
		cfg.LLM.Provider = tt.provider
		cfg.LLM.APIKey = tt.key
		if err := requireLLMKey(cfg); (err != nil) != tt.wantErr {
			t.Errorf("requireLLMKey(%s, %q) error = %v, wantErr %v", tt.provider, tt.key, err, tt.wantErr)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, model.LoggingConfig{Level: "info", Format: "json"}, false)
	logger.Debug("hidden")
	logger.Info("shown", slog.String("call_id", "abc"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", out, err)
	}
	if line["call_id"] != "abc" {
		t.Errorf("call_id = %v", line["call_id"])
	}

	buf.Reset()
	newLogger(&buf, model.LoggingConfig{Level: "error", Format: "text"}, true).Debug("verbose wins")
	if !strings.Contains(buf.String(), "verbose wins") {
		t.Errorf("verbose should force debug, got %q", buf.String())
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-live"
	cfg.Webhook.Token = "tok"

	masked := maskSecrets(*cfg)
	if masked.LLM.APIKey != "***" || masked.Webhook.Token != "***" {
		t.Errorf("secrets not masked: %+v %+v", masked.LLM, masked.Webhook)
	}
	if masked.Speech.APIKey != "" {
		t.Errorf("empty secret should stay empty, got %q", masked.Speech.APIKey)
	}
	if cfg.LLM.APIKey != "sk-live" {
		t.Error("maskSecrets modified the original")
	}
}

func TestOpenPlayer(t *testing.T) {
	p, closeFn, err := openPlayer("", false)
	if err != nil {
		t.Fatalf("openPlayer: %v", err)
	}
	if _, ok := p.(playback.DiscardPlayer); !ok {
		t.Errorf("empty output should discard, got %T", p)
	}
	_ = closeFn()

	path := filepath.Join(t.TempDir(), "reply.pcm")
	p, closeFn, err = openPlayer(path, false)
	if err != nil {
		t.Fatalf("openPlayer(file): %v", err)
	}
	if err := p.Play(context.Background(), &speech.Audio{Format: speech.FormatPCM16, SampleRate: 16000, Data: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) != 4 {
		t.Errorf("file holds %d bytes (%v), want 4", len(data), err)
	}
}

// emergencyClient flags an emergency on the first turn
type emergencyClient struct{}

func (emergencyClient) Name() string                         { return "emergency" }
func (emergencyClient) IsAvailable(ctx context.Context) bool { return true }
func (emergencyClient) Process(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return &llm.Result{
		Response:          "Stay calm.",
		EmergencyDetected: true,
		EmergencyReason:   "fire",
		FrustrationScore:  2,
		ConversationState: "GATHERING_POLICY_INFO",
	}, nil
}

func newConsoleOrchestrator(t *testing.T, prev *session.CallSession) (*orchestrator.Orchestrator, *session.CallSession) {
	t.Helper()
	ctrl := playback.New(speech.SilentSynthesizer{}, playback.DiscardPlayer{}, quietLogger())
	deps := orchestrator.Deps{Understanding: emergencyClient{}, Playback: ctrl, Session: prev}
	o := orchestrator.New(deps, orchestrator.DefaultConfig(), quietLogger())
	go func() {
		for range o.Events() {
		}
	}()
	s, err := o.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return o, s
}

func TestConverse_EndsOnEmergency(t *testing.T) {
	o, _ := newConsoleOrchestrator(t, nil)

	lines := make(chan string, 2)
	lines <- "my kitchen is on fire"
	lines <- "never read"

	more, err := converse(context.Background(), o, lines)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if !more {
		t.Error("input is still open, expected another call")
	}

	s := o.Summary()
	if !s.Transfer || s.FinalState != "EMERGENCY_TRANSFER" {
		t.Errorf("summary = %+v, want emergency transfer", s)
	}
	if len(lines) != 1 {
		t.Errorf("lines after the terminal turn should not be consumed, %d left", len(lines))
	}
}

func TestConverse_InputClosedHangsUp(t *testing.T) {
	o, _ := newConsoleOrchestrator(t, nil)

	lines := make(chan string)
	close(lines)

	more, err := converse(context.Background(), o, lines)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if more {
		t.Error("closed input should not start another call")
	}
	if got := o.Summary().EndReason; got != orchestrator.ReasonCancelled {
		t.Errorf("end reason = %q, want %q", got, orchestrator.ReasonCancelled)
	}
}

func TestConverse_NextCallReusesSession(t *testing.T) {
	lines := make(chan string, 2)
	lines <- "my kitchen is on fire"
	lines <- "the garage is on fire too"

	first, s := newConsoleOrchestrator(t, nil)
	if more, err := converse(context.Background(), first, lines); err != nil || !more {
		t.Fatalf("first call: more=%v err=%v", more, err)
	}
	firstID := s.ID

	second, reused := newConsoleOrchestrator(t, s)
	if reused != s {
		t.Fatal("second call should run on the first call's session")
	}
	if reused.ID == firstID {
		t.Error("reused session kept the previous call ID")
	}
	if reused.Transfer || reused.Machine.State() != intake.StateGreeting {
		t.Errorf("reused session not reset: transfer=%v state=%s", reused.Transfer, reused.Machine.State())
	}

	close(lines)
	if _, err := converse(context.Background(), second, lines); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := second.Summary(); !got.Transfer || got.CallID == firstID {
		t.Errorf("second summary = %+v", got)
	}
}

func TestTypedLines_SkipsBlankLines(t *testing.T) {
	var got []string
	for line := range typedLines(strings.NewReader("  hello \n\n\t\nmy policy is POL-1\n")) {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "hello" || got[1] != "my policy is POL-1" {
		t.Errorf("lines = %q", got)
	}
}

func TestWriteReports(t *testing.T) {
	reports := []replayReport{
		{Script: "a.txt", Summary: &model.CallSummary{CallID: "c1", FinalState: "COMPLETE", Complete: true}},
		{Script: "b.txt", Error: "boom"},
	}

	var buf bytes.Buffer
	if err := writeReports(&buf, reports, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded []replayReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Error != "boom" || !decoded[0].Summary.Complete {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := writeReports(&buf, reports, "yaml"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "script: a.txt") || !strings.Contains(buf.String(), "error: boom") {
		t.Errorf("yaml output missing fields:\n%s", buf.String())
	}
}

func TestDescribeOutcome(t *testing.T) {
	tests := []struct {
		summary *model.CallSummary
		want    string
	}{
		{nil, "no summary"},
		{&model.CallSummary{Complete: true}, "claim complete"},
		{&model.CallSummary{Transfer: true, TransferReason: "fire"}, "transferred: fire"},
		{&model.CallSummary{FinalState: "REVIEW", EndReason: "script_ended"}, "ended in REVIEW: script_ended"},
	}
	for _, tt := range tests {
		if got := describeOutcome(tt.summary); got != tt.want {
			t.Errorf("describeOutcome(%+v) = %q, want %q", tt.summary, got, tt.want)
		}
	}
}
