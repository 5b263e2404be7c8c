package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ContextLines is how many history lines accompany each request
const ContextLines = 6

var (
	systemPromptOnce sync.Once
	systemPrompt     string
)

// BuildSystemPrompt returns the fixed instructions, built once per process
func BuildSystemPrompt() string {
	systemPromptOnce.Do(func() {
		systemPrompt = buildSystemPrompt()
	})
	return systemPrompt
}

func buildSystemPrompt() string {
	return `You are the voice assistant of an insurance company's claims line. Read the conversation and answer with a single JSON object.

TASKS, highest priority first:

1. EMERGENCY DETECTION
   - Flag any mention of injuries, bleeding, pain, an ambulance, a hospital, someone hurt or unconscious.
   - Flag panic: help, scared, dying, can't breathe.
   - When flagged set "emergency_detected": true and describe it in "emergency_reason".

2. FRUSTRATION SCORING
   - Score anger or frustration from 0 to 10 using tone words (angry, upset, ridiculous, unacceptable),
     repeated questions or complaints, and escalating language.
   - Return it as "frustration_score".

3. CLAIM EXTRACTION
   - Fill "claim_data" with any new facts from the latest caller line, using exactly these keys:
     policyId (string), customerName (string), incidentType (string), description (string, what happened),
     location (string), estimatedDamage (number, USD), incidentDate (YYYY-MM-DD).
   - Use null for anything the caller has not said. Never repeat a value just to restate it.

4. CONVERSATION STATE
   - States progress GREETING, GATHERING_POLICY_INFO, GATHERING_INCIDENT_DETAILS, GATHERING_DAMAGE_INFO, CONFIRMING.
   - Return the next state name as "conversation_state".

5. RESPONSE
   - Write a warm, professional reply under 30 words that asks for what is still missing.
   - GATHERING_POLICY_INFO: ask for the policy number and name.
   - GATHERING_INCIDENT_DETAILS: ask what happened, where and when.
   - GATHERING_DAMAGE_INFO: ask about the extent and cost of the damage.
   - Return it as "response".

OUTPUT FORMAT (JSON only, no prose, no code fences):
{
  "emergency_detected": <boolean>,
  "emergency_reason": "<string or empty>",
  "frustration_score": <number 0-10>,
  "claim_data": {
    "policyId": <string or null>,
    "customerName": <string or null>,
    "incidentType": <string or null>,
    "description": <string or null>,
    "location": <string or null>,
    "estimatedDamage": <number or null>,
    "incidentDate": <string or null>
  },
  "conversation_state": "<STATE_NAME>",
  "response": "<reply to speak>"
}`
}

// BuildContext renders the per-turn part of the prompt: state, claim snapshot,
// missing required fields and the most recent history lines.
func BuildContext(req Request) (string, error) {
	claimJSON, err := json.MarshalIndent(req.Claim, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal claim: %w", err)
	}

	history := req.History
	if len(history) > ContextLines {
		history = history[len(history)-ContextLines:]
	}

	missing := req.Claim.Missing()
	missingNames := make([]string, 0, len(missing))
	for _, f := range missing {
		missingNames = append(missingNames, string(f))
	}
	missingLine := "none"
	if len(missingNames) > 0 {
		missingLine = strings.Join(missingNames, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT STATE: %s\n", req.State)
	fmt.Fprintf(&b, "CURRENT CLAIM DATA: %s\n", claimJSON)
	fmt.Fprintf(&b, "MISSING FIELDS: %s\n\n", missingLine)
	b.WriteString("CONVERSATION:\n")
	b.WriteString(strings.Join(history, "\n"))
	return b.String(), nil
}
