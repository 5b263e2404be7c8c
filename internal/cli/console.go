package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/orchestrator"
	"github.com/ppiankov/claimvoice/internal/session"
	"github.com/spf13/cobra"
)

var (
	consoleVoice bool
	consoleJSON  bool
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run a claim call by typing the caller's side",
	Long: `Console replaces the microphone and recognizer with the keyboard.
Every line typed is one committed caller utterance; the agent's replies
and state changes are printed as they happen. When a call ends the next
one starts on the same session. End input (Ctrl-D) hangs up.

Speech is silent unless --voice is given.

Example:
  claimvoice console
  claimvoice console --llm-provider ollama --llm-model llama3.1
  claimvoice console --voice --speech-output reply.pcm`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().BoolVar(&consoleVoice, "voice", false, "synthesize replies with the configured speech provider")
	consoleCmd.Flags().BoolVar(&consoleJSON, "events-json", false, "print call events as JSON lines")
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(cfg, logger, !consoleVoice)
	if err != nil {
		return err
	}
	defer svc.logCacheStats()
	serveMetrics(ctx, cfg.Metrics.Addr, svc.metrics, logger)

	player, closePlayer, err := openPlayer(cfg.Speech.Output, false)
	if err != nil {
		return err
	}
	defer func() { _ = closePlayer() }()

	lines := typedLines(cmd.InOrStdin())
	var prev *session.CallSession
	for {
		deps := svc.deps(player)
		deps.Session = prev
		o := orchestrator.New(deps, orchestrator.ConfigFromModel(cfg), logger)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			printEvents(cmd.OutOrStdout(), o.Events(), consoleJSON)
		}()

		s, err := o.Start(ctx)
		if err != nil {
			return err
		}

		more, err := converse(ctx, o, lines)
		<-printed
		printSummary(os.Stderr, o.Summary())
		if err != nil || !more {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n--- next call ---\n")
		prev = s
	}
}

// typedLines streams trimmed non-empty input lines until EOF
func typedLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lines <- line
		}
	}()
	return lines
}

// converse treats every line as a final transcript until the call ends,
// input runs out, or ctx is cancelled. The call is always ended on return.
// more reports that the call ended on its own with input still open.
func converse(ctx context.Context, o *orchestrator.Orchestrator, lines <-chan string) (more bool, err error) {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			o.End(ctx, orchestrator.ReasonCancelled)
			return false, nil

		case line, ok := <-lines:
			if !ok {
				o.End(ctx, orchestrator.ReasonCancelled)
				return false, nil
			}
			seq++
			res, err := o.HandleTranscript(ctx, model.TranscriptEvent{Text: line, Final: true, Seq: seq, At: time.Now()})
			if errors.Is(err, orchestrator.ErrCallEnded) {
				return true, nil
			}
			if err != nil {
				o.End(ctx, err.Error())
				return false, fmt.Errorf("handle utterance: %w", err)
			}
			if res.Ended {
				return true, nil
			}
		}
	}
}
