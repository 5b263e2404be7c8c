package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/worker"
)

// DepsFactory builds fresh collaborators for one call. Playback must not be
// shared between calls; the understanding client and webhook may be.
type DepsFactory func() (Deps, error)

// ScriptReplayer runs recorded caller lines through an independent
// orchestrator per script, each line treated as one final transcript.
type ScriptReplayer struct {
	NewDeps DepsFactory
	Config  Config
	Logger  *slog.Logger
}

// Replay plays the script until the call ends or the lines run out
func (r *ScriptReplayer) Replay(ctx context.Context, script worker.Script) (*model.CallSummary, error) {
	deps, err := r.NewDeps()
	if err != nil {
		return nil, fmt.Errorf("build dependencies for %s: %w", script.Name, err)
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := New(deps, r.Config, logger.With(slog.String("script", script.Name)))

	// Nobody watches replay events
	go func() {
		for range o.Events() {
		}
	}()

	if _, err := o.Start(ctx); err != nil {
		return nil, err
	}

	for i, line := range script.Lines {
		ev := model.TranscriptEvent{Text: line, Final: true, Seq: uint64(i + 1), At: time.Now()}
		res, err := o.HandleTranscript(ctx, ev)
		if errors.Is(err, ErrCallEnded) {
			break
		}
		if err != nil {
			o.End(ctx, err.Error())
			return o.Summary(), err
		}
		if res.Ended {
			break
		}
	}

	o.End(ctx, ReasonScriptEnded)
	return o.Summary(), nil
}
