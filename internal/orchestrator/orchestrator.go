// Package orchestrator runs the dialogue loop of one claim intake call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/claimvoice/internal/intake"
	"github.com/ppiankov/claimvoice/internal/llm"
	"github.com/ppiankov/claimvoice/internal/metrics"
	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/recognize"
	"github.com/ppiankov/claimvoice/internal/session"
	"github.com/ppiankov/claimvoice/internal/webhook"
)

var (
	// ErrNotStarted is returned when a transcript arrives before Start
	ErrNotStarted = errors.New("call not started")

	// ErrAlreadyStarted is returned by a second Start; one orchestrator serves one call
	ErrAlreadyStarted = errors.New("call already started")

	// ErrCallEnded is returned for transcripts after the call ended
	ErrCallEnded = errors.New("call has ended")
)

// Speaker plays utterances without blocking the loop
type Speaker interface {
	Start(ctx context.Context, text string) error
	IsBusy() bool
	WaitIdle(ctx context.Context) error
	Close()
}

// Deps are the collaborators of one call. Understanding and Playback are
// required; the rest are optional.
type Deps struct {
	Understanding llm.Client
	Playback      Speaker
	Webhook       webhook.Sink
	Metrics       *metrics.Metrics
	Registry      *session.Registry

	// Session, when set, is a finished call's session to reuse. Start resets
	// it; its frustration threshold and history size are kept.
	Session *session.CallSession
}

// Config is the dialogue policy
type Config struct {
	FrustrationThreshold float64
	HistorySize          int
	ContextLines         int
	UnderstandingTimeout time.Duration
	EventBuffer          int
	// EndWait bounds how long the final utterance may play before the call is torn down
	EndWait time.Duration
}

// DefaultConfig mirrors model.DefaultConfig
func DefaultConfig() Config {
	return Config{
		FrustrationThreshold: intake.DefaultFrustrationThreshold,
		HistorySize:          session.DefaultHistorySize,
		ContextLines:         llm.ContextLines,
		UnderstandingTimeout: 15 * time.Second,
		EventBuffer:          64,
		EndWait:              30 * time.Second,
	}
}

// ConfigFromModel maps the file configuration onto Config
func ConfigFromModel(cfg *model.Config) Config {
	c := DefaultConfig()
	c.FrustrationThreshold = cfg.Dialogue.FrustrationThreshold
	if cfg.Dialogue.HistorySize > 0 {
		c.HistorySize = cfg.Dialogue.HistorySize
	}
	if cfg.Dialogue.ContextLines > 0 {
		c.ContextLines = cfg.Dialogue.ContextLines
	}
	if cfg.LLM.Timeout > 0 {
		c.UnderstandingTimeout = time.Duration(cfg.LLM.Timeout) * time.Second
	}
	if cfg.Dialogue.EventBuffer > 0 {
		c.EventBuffer = cfg.Dialogue.EventBuffer
	}
	return c
}

// TurnResult describes how one transcript was handled
type TurnResult struct {
	Path      string
	Outcome   intake.Outcome
	State     intake.State
	Utterance string
	Ended     bool
}

// Orchestrator owns one CallSession and is its only writer
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	session *session.CallSession
	events  chan Event
	dropped atomic.Int64

	turns        int
	endOnce      sync.Once
	ended        bool
	endReason    string
	ticketPosted bool
}

// New creates an orchestrator for a single call
func New(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = llm.ContextLines
	}
	if cfg.HistorySize < cfg.ContextLines {
		cfg.HistorySize = max(session.DefaultHistorySize, cfg.ContextLines)
	}
	if cfg.EndWait <= 0 {
		cfg.EndWait = 30 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Events streams call events. The channel is closed when the call ends.
// Sends never block the loop; events are dropped when the buffer is full.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// DroppedEvents reports how many events were not delivered
func (o *Orchestrator) DroppedEvents() int64 {
	return o.dropped.Load()
}

// Session returns the active session, nil before Start
func (o *Orchestrator) Session() *session.CallSession {
	return o.session
}

// Start creates the session, registers it, and speaks the greeting
func (o *Orchestrator) Start(ctx context.Context) (*session.CallSession, error) {
	if o.session != nil {
		return nil, ErrAlreadyStarted
	}
	if o.deps.Understanding == nil || o.deps.Playback == nil {
		return nil, fmt.Errorf("orchestrator requires an understanding client and a playback controller")
	}

	if s := o.deps.Session; s != nil {
		if !s.Ended() {
			return nil, fmt.Errorf("session %s is still in a call", s.ID)
		}
		s.Reset()
		o.session = s
	} else {
		o.session = session.New(o.cfg.FrustrationThreshold, o.cfg.HistorySize)
	}
	o.logger = o.logger.With(slog.String("call_id", o.session.ID))
	if o.deps.Registry != nil {
		o.deps.Registry.Put(o.session)
	}
	o.deps.Metrics.RecordCallStarted()

	o.logger.Info("Call started",
		slog.String("provider", o.deps.Understanding.Name()),
		slog.Float64("frustration_threshold", o.session.Machine.Threshold()))

	o.say(ctx, GreetingMessage)
	return o.session, nil
}

// Run processes transcripts until the call reaches a terminal state, the
// transcript stream closes, or ctx is cancelled. The call is always ended
// before Run returns.
func (o *Orchestrator) Run(ctx context.Context, transcripts <-chan model.TranscriptEvent) error {
	if o.session == nil {
		if _, err := o.Start(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			o.End(ctx, ReasonCancelled)
			return ctx.Err()

		case ev, ok := <-transcripts:
			if !ok {
				err := fmt.Errorf("%w: transcript stream closed", recognize.ErrRecognition)
				o.RecognitionFailed(ctx, err)
				return err
			}
			res, err := o.HandleTranscript(ctx, ev)
			if err != nil {
				o.End(ctx, err.Error())
				return err
			}
			if res.Ended {
				return nil
			}
		}
	}
}

// HandleTranscript runs one turn. Partials only produce a caption event.
func (o *Orchestrator) HandleTranscript(ctx context.Context, ev model.TranscriptEvent) (TurnResult, error) {
	if o.session == nil {
		return TurnResult{}, ErrNotStarted
	}
	if o.ended {
		return TurnResult{}, ErrCallEnded
	}

	m := o.session.Machine
	if !ev.Final {
		if !ev.IsEmpty() {
			o.emit(Event{Type: EventCaption, Text: ev.Text})
			o.deps.Metrics.RecordTurn(metrics.PathPartial)
		}
		return TurnResult{Path: metrics.PathPartial, State: m.State()}, nil
	}
	if ev.IsEmpty() {
		return TurnResult{State: m.State()}, nil
	}

	o.turns++
	o.session.History.AddCaller(ev.Text)
	o.emit(Event{Type: EventUserMessage, Text: ev.Text})

	var res TurnResult
	if m.State() == intake.StateReview {
		res = o.review(ev.Text)
	} else {
		res = o.understand(ctx)
	}
	res.State = m.State()
	o.deps.Metrics.RecordTurn(res.Path)

	o.say(ctx, res.Utterance)

	if res.State.IsTerminal() || o.session.Transfer {
		o.End(ctx, o.terminalReason())
		res.Ended = true
	}
	return res, nil
}

// review is the local fast path; it never calls the understanding service
func (o *Orchestrator) review(text string) TurnResult {
	s := o.session
	d, err := s.Machine.Review(text)
	if err != nil {
		// unreachable: the caller checked the state
		o.logger.Error("Review answer outside REVIEW", slog.String("error", err.Error()))
		return TurnResult{Path: metrics.PathReview, Utterance: ReaskMessage}
	}

	res := TurnResult{Path: metrics.PathReview, Outcome: d.Outcome}
	switch d.Outcome {
	case intake.OutcomeComplete:
		s.Complete = true
		res.Utterance = CompletionMessage
		claim := s.Machine.Claim()
		o.emit(Event{Type: EventCallComplete, Claim: &claim})
	case intake.OutcomeChangeRequested:
		res.Utterance = ChangeRequestMessage
	case intake.OutcomeEmergency:
		o.transfer(d.Reason)
		res.Utterance = EmergencyMessage
	default:
		s.ConfirmRetries++
		res.Utterance = ReaskMessage
	}
	o.stateChanged(d)

	o.logger.Info("Review answer classified",
		slog.String("outcome", d.Outcome.String()),
		slog.Int("confirm_retries", s.ConfirmRetries))
	return res
}

// understand is the normal path: one understanding call, then the state machine
func (o *Orchestrator) understand(ctx context.Context) TurnResult {
	s := o.session
	m := s.Machine
	res := TurnResult{Path: metrics.PathUnderstanding}

	req := llm.Request{
		State:   m.State().Value(),
		Claim:   m.Claim(),
		History: s.History.Last(o.cfg.ContextLines),
	}

	callCtx := ctx
	if o.cfg.UnderstandingTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.UnderstandingTimeout)
		defer cancel()
	}

	started := time.Now()
	result, err := o.deps.Understanding.Process(callCtx, req)
	o.deps.Metrics.RecordUnderstanding(time.Since(started).Seconds(), err)
	if err != nil {
		o.logger.Error("Understanding call failed",
			slog.String("state", string(m.State())),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()))
		o.transfer(ReasonTechnicalError)
		res.Utterance = TechnicalApologyMessage
		return res
	}

	d, err := m.Apply(intake.Extraction{
		EmergencyDetected: result.EmergencyDetected,
		EmergencyReason:   result.EmergencyReason,
		FrustrationScore:  result.FrustrationScore,
		ClaimData:         result.ClaimData,
		SuggestedState:    result.ConversationState,
	})
	if err != nil {
		o.logger.Error("Turn rejected by state machine", slog.String("error", err.Error()))
		o.transfer(ReasonTechnicalError)
		res.Utterance = TechnicalApologyMessage
		return res
	}
	res.Outcome = d.Outcome

	if len(d.Changed) > 0 {
		claim := m.Claim()
		o.emit(Event{Type: EventClaimUpdate, Claim: &claim})
	}

	switch d.Outcome {
	case intake.OutcomeEmergency:
		o.transfer(d.Reason)
		res.Utterance = EmergencyMessage
	case intake.OutcomeFrustration:
		o.transfer(d.Reason)
		res.Utterance = FrustrationMessage
	case intake.OutcomeReview:
		res.Utterance = intake.ConfirmationPrompt(m.Claim())
	default:
		res.Utterance = result.Response
	}
	o.stateChanged(d)

	o.logger.Info("Turn processed",
		slog.String("outcome", d.Outcome.String()),
		slog.String("state", string(d.To)),
		slog.Float64("frustration", m.Frustration()),
		slog.Int("fields_changed", len(d.Changed)))
	return res
}

// RecognitionFailed ends the call with an apology; recognition cannot recover
func (o *Orchestrator) RecognitionFailed(ctx context.Context, err error) {
	if o.session == nil || o.ended {
		return
	}
	o.logger.Error("Recognition failed", slog.String("error", err.Error()))
	o.say(ctx, RecognitionApologyMessage)
	o.End(ctx, ReasonRecognitionFailure)
}

// End tears the call down exactly once: the final utterance is allowed to
// finish (bounded by ctx and EndWait), playback is closed, the session leaves
// the registry, and a completed claim is delivered to the webhook.
func (o *Orchestrator) End(ctx context.Context, reason string) {
	if o.session == nil {
		return
	}
	o.endOnce.Do(func() {
		o.ended = true
		o.endReason = reason
		s := o.session
		s.End()

		waitCtx, cancel := context.WithTimeout(ctx, o.cfg.EndWait)
		if err := o.deps.Playback.WaitIdle(waitCtx); err != nil {
			o.logger.Warn("Cutting off final utterance", slog.String("error", err.Error()))
		}
		cancel()
		o.deps.Playback.Close()

		if o.deps.Registry != nil {
			o.deps.Registry.Remove(s.ID)
		}

		if s.Complete {
			o.deliverTicket(ctx)
		}

		o.deps.Metrics.RecordCallEnded(s.Duration().Seconds(), s.Complete)
		o.emit(Event{Type: EventCallEnded, Reason: reason})
		o.logger.Info("Call ended",
			slog.String("reason", reason),
			slog.String("state", string(s.Machine.State())),
			slog.Bool("transfer", s.Transfer),
			slog.Int("turns", o.turns),
			slog.Duration("duration", s.Duration()))
		close(o.events)
	})
}

// deliverTicket posts the claim once; the caller may already have hung up
// so the parent cancellation does not apply
func (o *Orchestrator) deliverTicket(ctx context.Context) {
	if o.deps.Webhook == nil {
		o.logger.Warn("No webhook configured, ticket not delivered")
		return
	}
	payload := webhook.NewPayload(o.session.Machine.Claim(), time.Now())
	result, err := o.deps.Webhook.Deliver(context.WithoutCancel(ctx), payload)
	o.deps.Metrics.RecordTicket(err)
	if err != nil {
		o.logger.Error("Ticket delivery failed", slog.String("error", err.Error()))
		return
	}
	o.ticketPosted = true
	o.emit(Event{Type: EventTicketPosted, Ticket: result})
}

// Summary reports how the call went
func (o *Orchestrator) Summary() *model.CallSummary {
	if o.session == nil {
		return nil
	}
	s := o.session
	return &model.CallSummary{
		CallID:         s.ID,
		FinalState:     string(s.Machine.State()),
		Claim:          s.Machine.Claim(),
		Frustration:    s.Machine.Frustration(),
		Complete:       s.Complete,
		Transfer:       s.Transfer,
		TransferReason: s.TransferReason,
		EndReason:      o.endReason,
		Turns:          o.turns,
		TicketPosted:   o.ticketPosted,
		Duration:       s.Duration(),
	}
}

func (o *Orchestrator) terminalReason() string {
	switch {
	case o.session.Complete:
		return ReasonCompleted
	case o.session.Transfer:
		return ReasonTransferred
	default:
		return string(o.session.Machine.State())
	}
}

func (o *Orchestrator) transfer(reason string) {
	o.session.MarkTransfer(reason)
	o.deps.Metrics.RecordTransfer(reason)
	o.emit(Event{Type: EventTransfer, Reason: reason})
	o.logger.Warn("Transferring call", slog.String("reason", reason))
}

func (o *Orchestrator) stateChanged(d intake.Decision) {
	if d.From == d.To {
		return
	}
	o.emit(Event{Type: EventStateChange, From: string(d.From), To: string(d.To)})
}

// say records the utterance and speaks it once the previous one has finished
func (o *Orchestrator) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	o.session.History.AddAssistant(text)
	o.emit(Event{Type: EventAssistantMessage, Text: text, Frustration: o.session.Machine.Frustration()})

	if err := o.deps.Playback.WaitIdle(ctx); err != nil {
		o.logger.Warn("Gave up waiting for playback", slog.String("error", err.Error()))
		return
	}
	if err := o.deps.Playback.Start(ctx, text); err != nil {
		o.deps.Metrics.RecordPlaybackFailure()
		o.logger.Error("Playback failed to start", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) emit(ev Event) {
	if o.ended && ev.Type != EventCallEnded && ev.Type != EventTicketPosted {
		return
	}
	ev.At = time.Now()
	if o.session != nil {
		ev.CallID = o.session.ID
	}
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
		o.deps.Metrics.RecordEventDropped()
	}
}
