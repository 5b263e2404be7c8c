package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ClaimField names one attribute of a claim record using its wire name
type ClaimField string

const (
	FieldPolicyID        ClaimField = "policyId"
	FieldCustomerName    ClaimField = "customerName"
	FieldIncidentType    ClaimField = "incidentType"
	FieldDescription     ClaimField = "description"
	FieldLocation        ClaimField = "location"
	FieldEstimatedDamage ClaimField = "estimatedDamage"
	FieldIncidentDate    ClaimField = "incidentDate"
)

// AllFields lists every claim field in schema order
var AllFields = []ClaimField{
	FieldPolicyID,
	FieldCustomerName,
	FieldIncidentType,
	FieldDescription,
	FieldLocation,
	FieldEstimatedDamage,
	FieldIncidentDate,
}

// RequiredFields gate claim completion. estimatedDamage and incidentDate are optional.
var RequiredFields = []ClaimField{
	FieldPolicyID,
	FieldCustomerName,
	FieldIncidentType,
	FieldDescription,
	FieldLocation,
}

// ClaimRecord is the structured incident data assembled across turns.
// Every field is independently nullable.
type ClaimRecord struct {
	PolicyID        *string `json:"policyId" yaml:"policyId"`
	CustomerName    *string `json:"customerName" yaml:"customerName"`
	IncidentType    *string `json:"incidentType" yaml:"incidentType"`
	Description     *string `json:"description" yaml:"description"`
	Location        *string `json:"location" yaml:"location"`
	EstimatedDamage *string `json:"estimatedDamage" yaml:"estimatedDamage"`
	IncidentDate    *string `json:"incidentDate" yaml:"incidentDate"`
}

// sentinels are placeholder values an extractor may return instead of
// omitting a field. Kept short so real values such as a surname "Na" survive.
var sentinels = map[string]bool{
	"null":    true,
	"unknown": true,
}

var frustrationTagPattern = regexp.MustCompile(`^\[Frustration Score: [0-9]+(\.[0-9]+)?/10\] `)

// IsEmptyValue reports whether v carries no usable information
func IsEmptyValue(v *string) bool {
	if v == nil {
		return true
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return true
	}
	return sentinels[strings.ToLower(s)]
}

// Get returns the field value, or "" when unset
func (c ClaimRecord) Get(field ClaimField) string {
	p := c.ptr(field)
	if p == nil || *p == nil {
		return ""
	}
	return **p
}

// Has reports whether the field holds a non-empty value
func (c ClaimRecord) Has(field ClaimField) bool {
	p := c.ptr(field)
	if p == nil {
		return false
	}
	return !IsEmptyValue(*p)
}

// Set assigns a field. An empty value clears it.
func (c *ClaimRecord) Set(field ClaimField, value string) {
	p := c.ptr(field)
	if p == nil {
		return
	}
	if IsEmptyValue(&value) {
		*p = nil
		return
	}
	v := strings.TrimSpace(value)
	*p = &v
}

// ptr maps a field name to its storage; nil for unknown names
func (c *ClaimRecord) ptr(field ClaimField) **string {
	switch field {
	case FieldPolicyID:
		return &c.PolicyID
	case FieldCustomerName:
		return &c.CustomerName
	case FieldIncidentType:
		return &c.IncidentType
	case FieldDescription:
		return &c.Description
	case FieldLocation:
		return &c.Location
	case FieldEstimatedDamage:
		return &c.EstimatedDamage
	case FieldIncidentDate:
		return &c.IncidentDate
	default:
		return nil
	}
}

// Clone returns a deep copy so callers never share field storage
func (c ClaimRecord) Clone() ClaimRecord {
	var out ClaimRecord
	for _, f := range AllFields {
		if v := c.ptr(f); *v != nil {
			s := **v
			*out.ptr(f) = &s
		}
	}
	return out
}

// IsComplete reports whether all required fields are populated
func (c ClaimRecord) IsComplete() bool {
	return len(c.Missing()) == 0
}

// Missing lists the required fields that are still empty
func (c ClaimRecord) Missing() []ClaimField {
	var missing []ClaimField
	for _, f := range RequiredFields {
		if !c.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Merge applies an update on top of the record and returns the merged copy
// plus the fields that changed. The receiver is never modified, so a caller
// that discards the result leaves the record exactly as it was.
//
// A populated field is only replaced by a genuinely new non-empty value.
// A newly captured description is tagged with the frustration score at capture.
func (c ClaimRecord) Merge(update ClaimRecord, frustration float64) (ClaimRecord, []ClaimField) {
	merged := c.Clone()
	var changed []ClaimField

	for _, f := range AllFields {
		incoming := *update.ptr(f)
		if IsEmptyValue(incoming) {
			continue
		}
		value := strings.TrimSpace(*incoming)

		if f == FieldDescription {
			if c.Has(FieldDescription) && StripFrustrationTag(c.Get(FieldDescription)) == StripFrustrationTag(value) {
				continue
			}
			value = TagDescription(value, frustration)
		}

		if c.Has(f) && c.Get(f) == value {
			continue
		}
		merged.Set(f, value)
		changed = append(changed, f)
	}

	return merged, changed
}

// TagDescription prefixes text with the bracketed frustration score.
// Text that already carries a tag is returned unchanged.
func TagDescription(text string, frustration float64) string {
	if frustrationTagPattern.MatchString(text) {
		return text
	}
	return fmt.Sprintf("[Frustration Score: %s/10] %s", FormatScore(frustration), text)
}

// FormatScore prints whole scores with one decimal ("8.0") and others at
// full precision ("7.25")
func FormatScore(score float64) string {
	if score == float64(int64(score)) {
		return strconv.FormatFloat(score, 'f', 1, 64)
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// StripFrustrationTag removes a leading frustration tag, if any
func StripFrustrationTag(text string) string {
	return frustrationTagPattern.ReplaceAllString(text, "")
}

// UnmarshalJSON accepts strings, numbers, and nulls for every field.
// Any other JSON type is rejected so malformed extractions fail closed.
func (c *ClaimRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("claim data must be an object: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("claim data must be an object")
	}

	var out ClaimRecord
	for _, f := range AllFields {
		value, ok := raw[string(f)]
		if !ok {
			continue
		}
		s, err := decodeScalar(value)
		if err != nil {
			return fmt.Errorf("claim field %s: %w", f, err)
		}
		if s != nil {
			out.Set(f, *s)
		}
	}

	*c = out
	return nil
}

// decodeScalar turns a JSON string or number into text; null yields nil
func decodeScalar(value json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, err
		}
		s := strconv.FormatFloat(n, 'f', -1, 64)
		return &s, nil
	default:
		return nil, fmt.Errorf("unsupported value %s", string(trimmed))
	}
}

// StringPtr is a convenience for building records in code and tests
func StringPtr(s string) *string {
	return &s
}
