package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/claimvoice/internal/audio"
	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/orchestrator"
	"github.com/ppiankov/claimvoice/internal/recognize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var callEventsJSON bool

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Take one live claim call",
	Long: `Call answers a single call end to end:
- Capture caller audio from the configured device (stdin, raw PCM, or WAV)
- Stream it to the recognizer and react to every committed utterance
- Speak each reply through the synthesizer while listening continues
- File the ticket on the webhook once the caller confirms the claim

Audio input is 16-bit little-endian mono PCM at audio.sample_rate.

Example:
  arecord -f S16_LE -r 16000 -c 1 -t raw | claimvoice call
  claimvoice call --device recording.wav --speech-output reply.pcm
  claimvoice call --metrics-addr :9090 --events-json`,
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().String("device", "", "audio input: '-' for stdin, a .wav file, or a raw PCM file")
	callCmd.Flags().String("speech-output", "", "write synthesized PCM here ('-' for stdout, empty discards)")
	callCmd.Flags().Bool("realtime", false, "pace file input and output at capture speed")
	callCmd.Flags().BoolVar(&callEventsJSON, "events-json", false, "print call events as JSON lines")

	_ = viper.BindPFlag("audio.device", callCmd.Flags().Lookup("device"))
	_ = viper.BindPFlag("speech.output", callCmd.Flags().Lookup("speech-output"))
	_ = viper.BindPFlag("audio.realtime", callCmd.Flags().Lookup("realtime"))
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(cfg, logger, false)
	if err != nil {
		return err
	}
	defer svc.logCacheStats()
	serveMetrics(ctx, cfg.Metrics.Addr, svc.metrics, logger)

	if !svc.understanding.IsAvailable(ctx) {
		logger.Warn("Understanding provider is not reachable", slog.String("provider", svc.understanding.Name()))
	}

	player, closePlayer, err := openPlayer(cfg.Speech.Output, cfg.Audio.Realtime)
	if err != nil {
		return err
	}
	defer func() { _ = closePlayer() }()

	rec, err := recognize.Dial(ctx, recognize.ConfigFromModel(cfg.Recognizer, cfg.Audio.SampleRate), logger)
	if err != nil {
		return fmt.Errorf("connect recognizer: %w", err)
	}
	defer func() { _ = rec.Close() }()

	capture := audio.NewCapture(cfg.Audio, logger)
	capture.OnDrop(svc.metrics.RecordCaptureDrop)
	device := audio.SelectDevice(cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err := capture.Start(ctx, device); err != nil {
		return fmt.Errorf("start capture on %s: %w", device.Name(), err)
	}
	defer capture.Stop()

	o := orchestrator.New(svc.deps(player), orchestrator.ConfigFromModel(cfg), logger)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(os.Stderr, o.Events(), callEventsJSON)
	}()

	if _, err := o.Start(ctx); err != nil {
		return err
	}

	listenCtx, cancelListen := context.WithCancel(ctx)
	transcripts := make(chan model.TranscriptEvent, 16)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- recognize.Listen(listenCtx, capture, rec, transcripts, logger)
	}()

	runErr := o.Run(ctx, transcripts)

	cancelListen()
	capture.Stop()
	if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Listening stopped", slog.String("error", err.Error()))
	}
	<-printed

	printSummary(os.Stderr, o.Summary())

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
