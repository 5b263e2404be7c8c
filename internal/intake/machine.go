package intake

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/claimvoice/internal/model"
)

var (
	// ErrTerminal is returned when a turn is applied after the call ended
	ErrTerminal = errors.New("dialogue is in a terminal state")

	// ErrNotInReview is returned when a review answer arrives outside REVIEW
	ErrNotInReview = errors.New("dialogue is not awaiting claim confirmation")
)

const (
	// MinFrustration and MaxFrustration bound the frustration score
	MinFrustration = 0.0
	MaxFrustration = 10.0

	// DefaultFrustrationThreshold matches the build that introduced REVIEW.
	// Whether it should be 7.0 is an open product question.
	DefaultFrustrationThreshold = 5.0

	defaultEmergencyReason = "emergency"
)

// Outcome tells the orchestrator what kind of utterance a turn requires
type Outcome int

const (
	// OutcomeContinue speaks the understanding service's own response
	OutcomeContinue Outcome = iota
	// OutcomeReview asks the caller to confirm the claim summary
	OutcomeReview
	// OutcomeEmergency hands the caller to the emergency team
	OutcomeEmergency
	// OutcomeFrustration hands the caller to a specialist
	OutcomeFrustration
	// OutcomeComplete confirms the claim and ends intake
	OutcomeComplete
	// OutcomeChangeRequested returns to gathering details
	OutcomeChangeRequested
	// OutcomeReask repeats the confirmation question
	OutcomeReask
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeReview:
		return "review"
	case OutcomeEmergency:
		return "emergency"
	case OutcomeFrustration:
		return "frustration"
	case OutcomeComplete:
		return "complete"
	case OutcomeChangeRequested:
		return "change_requested"
	case OutcomeReask:
		return "reask"
	default:
		return "unknown"
	}
}

// IsTransfer reports whether the outcome hands the call to a human
func (o Outcome) IsTransfer() bool {
	return o == OutcomeEmergency || o == OutcomeFrustration
}

// Extraction is what the understanding service returned for one turn
type Extraction struct {
	EmergencyDetected bool
	EmergencyReason   string
	FrustrationScore  float64
	ClaimData         model.ClaimRecord
	SuggestedState    string
}

// Decision is the result of applying one turn to the machine
type Decision struct {
	Outcome Outcome
	From    State
	To      State
	Reason  string             // Transfer reason when Outcome.IsTransfer()
	Changed []model.ClaimField // Claim fields updated by this turn
}

// Machine owns the dialogue state, the claim record and the frustration score.
// It is not safe for concurrent use; the orchestrator loop is its only writer.
type Machine struct {
	state       State
	claim       model.ClaimRecord
	frustration float64
	threshold   float64
}

// NewMachine creates a machine in GREETING with the given frustration threshold
func NewMachine(threshold float64) *Machine {
	return &Machine{
		state:     StateGreeting,
		threshold: ClampFrustration(threshold),
	}
}

// State returns the current dialogue state
func (m *Machine) State() State {
	return m.state
}

// Claim returns a copy of the claim record
func (m *Machine) Claim() model.ClaimRecord {
	return m.claim.Clone()
}

// Frustration returns the last recorded frustration score
func (m *Machine) Frustration() float64 {
	return m.frustration
}

// Threshold returns the frustration handoff threshold
func (m *Machine) Threshold() float64 {
	return m.threshold
}

// Reset restores the initial state for a new call
func (m *Machine) Reset() {
	m.state = StateGreeting
	m.claim = model.ClaimRecord{}
	m.frustration = 0
}

// Apply merges one understanding result and picks the next state.
//
// Priority, highest first: emergency, frustration above threshold, claim
// completion (enters REVIEW), then the state suggested by the service.
func (m *Machine) Apply(ex Extraction) (Decision, error) {
	if m.state.IsTerminal() {
		return Decision{From: m.state, To: m.state}, ErrTerminal
	}

	from := m.state
	score := ClampFrustration(ex.FrustrationScore)

	// Merge is computed on a copy and committed in one assignment
	merged, changed := m.claim.Merge(ex.ClaimData, score)
	suggested := m.resolveSuggested(ex.SuggestedState)

	m.claim = merged
	m.frustration = score

	d := Decision{From: from, Changed: changed}

	switch {
	case ex.EmergencyDetected:
		m.state = StateEmergencyTransfer
		d.Outcome = OutcomeEmergency
		d.Reason = ex.EmergencyReason
		if d.Reason == "" {
			d.Reason = defaultEmergencyReason
		}

	case score > m.threshold:
		m.state = StateEmergencyTransfer
		d.Outcome = OutcomeFrustration
		d.Reason = FrustrationReason(score)

	case m.claim.IsComplete() && m.state != StateReview && m.state != StateComplete:
		m.state = StateReview
		d.Outcome = OutcomeReview

	default:
		m.state = suggested
		d.Outcome = OutcomeContinue
	}

	d.To = m.state
	return d, nil
}

// Review classifies a caller reply to the claim summary without any external
// call. A distress phrase transfers the call before the answer is classified.
func (m *Machine) Review(text string) (Decision, error) {
	if m.state != StateReview {
		return Decision{From: m.state, To: m.state}, ErrNotInReview
	}

	d := Decision{From: m.state}
	if phrase, ok := DetectEmergency(text); ok {
		m.state = StateEmergencyTransfer
		d.Outcome = OutcomeEmergency
		d.Reason = ReviewEmergencyReason(phrase)
		d.To = m.state
		return d, nil
	}

	switch ClassifyAnswer(text) {
	case AnswerAffirmative:
		m.state = StateComplete
		d.Outcome = OutcomeComplete
	case AnswerNegative:
		m.state = StateGatheringIncidentDetails
		d.Outcome = OutcomeChangeRequested
	default:
		d.Outcome = OutcomeReask
	}
	d.To = m.state
	return d, nil
}

// Summary renders the present claim fields for the confirmation prompt
func (m *Machine) Summary() string {
	return Summarize(m.claim)
}

// resolveSuggested validates a state name from the service.
// Unknown names, backward moves, and states the service may not choose
// (REVIEW, COMPLETE, EMERGENCY_TRANSFER) all fall back to the current state.
func (m *Machine) resolveSuggested(name string) State {
	s, ok := ParseState(name)
	if !ok {
		return m.state
	}
	switch s {
	case StateReview, StateComplete, StateEmergencyTransfer:
		return m.state
	}
	if s.precedes(m.state) {
		return m.state
	}
	return s
}

// ClampFrustration bounds a score to [0,10]
func ClampFrustration(score float64) float64 {
	if math.IsNaN(score) {
		return MinFrustration
	}
	if score < MinFrustration {
		return MinFrustration
	}
	if score > MaxFrustration {
		return MaxFrustration
	}
	return score
}

// ReviewEmergencyReason names the distress phrase heard during review
func ReviewEmergencyReason(phrase string) string {
	return "caller reported emergency during review: " + phrase
}

// FrustrationReason encodes the score in the transfer reason
func FrustrationReason(score float64) string {
	return fmt.Sprintf("high_frustration_%s", model.FormatScore(score))
}
