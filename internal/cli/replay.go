package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/orchestrator"
	"github.com/ppiankov/claimvoice/internal/playback"
	"github.com/ppiankov/claimvoice/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	replayFormat  string
	replayTimeout time.Duration
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <list-file>",
	Short: "Replay recorded caller scripts in parallel",
	Long: `Replay runs recorded calls through the dialogue without audio:
- Read script paths from the list file (one per line)
- Each script holds one committed caller utterance per line
- Every script gets its own call, replayed concurrently
- Print the end-of-call summary for each script

Speech is silent; the understanding provider and webhook are real.

Example:
  claimvoice replay scripts.txt
  claimvoice replay scripts.txt --concurrency 8 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Int("concurrency", 0, "number of calls replayed at once (default: concurrency.workers)")
	replayCmd.Flags().StringVar(&replayFormat, "format", "yaml", "summary format: yaml or json")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 10*time.Minute, "total timeout for the replay")

	_ = viper.BindPFlag("concurrency.workers", replayCmd.Flags().Lookup("concurrency"))
}

func runReplay(cmd *cobra.Command, args []string) error {
	file := args[0]
	if replayFormat != "yaml" && replayFormat != "json" {
		return fmt.Errorf("unknown format %q (supported: yaml, json)", replayFormat)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Claimvoice Replay\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Script list:  %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", replayTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	svc, err := newServices(cfg, logger, true)
	if err != nil {
		return err
	}
	serveMetrics(ctx, cfg.Metrics.Addr, svc.metrics, logger)

	replayer := &orchestrator.ScriptReplayer{
		NewDeps: func() (orchestrator.Deps, error) {
			return svc.deps(playback.DiscardPlayer{}), nil
		},
		Config: orchestrator.ConfigFromModel(cfg),
		Logger: logger,
	}
	processor := worker.NewBatchProcessor(replayer, cfg.Concurrency.Workers)

	fmt.Fprintf(os.Stderr, "⚙️  Replaying scripts with %d workers...\n\n", cfg.Concurrency.Workers)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	reports := make([]replayReport, 0, len(results))
	successCount, failureCount, completeCount := 0, 0, 0
	for _, result := range results {
		report := replayReport{Script: result.Script, Summary: result.Summary}
		if result.Error != nil {
			failureCount++
			report.Error = result.Error.Error()
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Script, result.Error)
		} else {
			successCount++
			if result.Summary != nil && result.Summary.Complete {
				completeCount++
			}
			fmt.Fprintf(os.Stderr, "✓ %s (%s)\n", result.Script, describeOutcome(result.Summary))
		}
		reports = append(reports, report)
	}

	if err := writeReports(cmd.OutOrStdout(), reports, replayFormat); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Replay Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d scripts\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Claims:    %d complete\n", completeCount)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// replayReport is one script's entry in the printed results
type replayReport struct {
	Script  string             `json:"script" yaml:"script"`
	Summary *model.CallSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error   string             `json:"error,omitempty" yaml:"error,omitempty"`
}

func writeReports(w io.Writer, reports []replayReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(reports)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func describeOutcome(s *model.CallSummary) string {
	switch {
	case s == nil:
		return "no summary"
	case s.Complete:
		return "claim complete"
	case s.Transfer:
		return "transferred: " + s.TransferReason
	default:
		return fmt.Sprintf("ended in %s: %s", s.FinalState, s.EndReason)
	}
}
