package llm

import "github.com/ppiankov/claimvoice/internal/model"

// validReply is a well-formed service reply used across provider tests
const validReply = `{
  "emergency_detected": false,
  "emergency_reason": "",
  "frustration_score": 2.5,
  "claim_data": {
    "policyId": "PL-100",
    "customerName": "Jane Doe",
    "incidentType": null,
    "description": null,
    "location": null,
    "estimatedDamage": null,
    "incidentDate": null
  },
  "conversation_state": "GATHERING_INCIDENT_DETAILS",
  "response": "Thanks Jane. What happened?"
}`

func sampleRequest() Request {
	return Request{
		State:   "gathering_policy_info",
		Claim:   model.ClaimRecord{PolicyID: model.StringPtr("PL-100")},
		History: []string{"ASSISTANT: Hello!", "CALLER: my policy is PL-100, I'm Jane Doe"},
	}
}
