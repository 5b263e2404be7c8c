package intake

import "strings"

// State is a dialogue state of the claim intake conversation
type State string

const (
	StateGreeting                 State = "GREETING"
	StateGatheringPolicyInfo      State = "GATHERING_POLICY_INFO"
	StateGatheringIncidentDetails State = "GATHERING_INCIDENT_DETAILS"
	StateGatheringDamageInfo      State = "GATHERING_DAMAGE_INFO"
	StateConfirming               State = "CONFIRMING"
	StateReview                   State = "REVIEW"
	StateComplete                 State = "COMPLETE"
	StateEmergencyTransfer        State = "EMERGENCY_TRANSFER"
)

// order ranks the forward progression. EMERGENCY_TRANSFER sits outside it.
var order = map[State]int{
	StateGreeting:                 0,
	StateGatheringPolicyInfo:      1,
	StateGatheringIncidentDetails: 2,
	StateGatheringDamageInfo:      3,
	StateConfirming:               4,
	StateReview:                   5,
	StateComplete:                 6,
}

// aliases maps names used by older prompt versions
var aliases = map[string]State{
	"TO_REVIEW": StateReview,
}

// States returns every known state in progression order
func States() []State {
	return []State{
		StateGreeting,
		StateGatheringPolicyInfo,
		StateGatheringIncidentDetails,
		StateGatheringDamageInfo,
		StateConfirming,
		StateReview,
		StateComplete,
		StateEmergencyTransfer,
	}
}

// ParseState resolves a state name from untrusted input.
// Both "GATHERING_POLICY_INFO" and "gathering_policy_info" are accepted.
// It never fails loudly: unknown names return false.
func ParseState(name string) (State, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if key == "" {
		return "", false
	}
	if s, ok := aliases[key]; ok {
		return s, true
	}
	for _, s := range States() {
		if string(s) == key {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions can occur
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateEmergencyTransfer
}

// Value returns the lower-case form used in prompts and events
func (s State) Value() string {
	return strings.ToLower(string(s))
}

// precedes reports whether s comes strictly before other in the forward order
func (s State) precedes(other State) bool {
	a, okA := order[s]
	b, okB := order[other]
	return okA && okB && a < b
}
