package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/claimvoice/internal/model"
)

// ErrMalformedResult marks a service reply that does not follow the JSON contract
var ErrMalformedResult = errors.New("malformed understanding result")

type rawResult struct {
	Response          *json.RawMessage `json:"response"`
	EmergencyDetected *json.RawMessage `json:"emergency_detected"`
	EmergencyReason   *json.RawMessage `json:"emergency_reason"`
	FrustrationScore  *json.RawMessage `json:"frustration_score"`
	ClaimData         *json.RawMessage `json:"claim_data"`
	ConversationState *json.RawMessage `json:"conversation_state"`
}

// ParseResult decodes a service reply. It fails closed: a reply that is not a
// JSON object, lacks "response", or carries a wrongly typed field is rejected.
// A blank response is replaced by DefaultResponse. The frustration score is
// returned as sent; bounding it is the state machine's job.
func ParseResult(data []byte) (*Result, error) {
	body := stripCodeFence(data)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedResult)
	}

	var raw rawResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if raw.Response == nil {
		return nil, fmt.Errorf("%w: missing response", ErrMalformedResult)
	}

	res := &Result{}
	if err := decodeField("response", raw.Response, &res.Response); err != nil {
		return nil, err
	}
	res.Response = strings.TrimSpace(res.Response)
	if res.Response == "" {
		res.Response = DefaultResponse
	}

	if err := decodeField("emergency_detected", raw.EmergencyDetected, &res.EmergencyDetected); err != nil {
		return nil, err
	}
	if err := decodeField("emergency_reason", raw.EmergencyReason, &res.EmergencyReason); err != nil {
		return nil, err
	}
	if err := decodeField("frustration_score", raw.FrustrationScore, &res.FrustrationScore); err != nil {
		return nil, err
	}
	if err := decodeField("conversation_state", raw.ConversationState, &res.ConversationState); err != nil {
		return nil, err
	}

	if raw.ClaimData != nil && !isNull(*raw.ClaimData) {
		var claim model.ClaimRecord
		if err := json.Unmarshal(*raw.ClaimData, &claim); err != nil {
			return nil, fmt.Errorf("%w: claim_data: %v", ErrMalformedResult, err)
		}
		res.ClaimData = claim
	}

	return res, nil
}

// decodeField decodes one optional field; absent or null leaves dst at its zero value
func decodeField(name string, value *json.RawMessage, dst any) error {
	if value == nil || isNull(*value) {
		return nil
	}
	if err := json.Unmarshal(*value, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResult, name, err)
	}
	return nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// stripCodeFence removes a markdown fence some models wrap around JSON
func stripCodeFence(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
