// Package webhook delivers completed claims to the ticketing workflow.
package webhook

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
)

// ErrDelivery is returned when the ticket endpoint rejects or cannot receive a payload
var ErrDelivery = errors.New("webhook delivery failed")

// Payload is the ticket schema expected by the workflow
type Payload struct {
	PolicyID        string  `json:"policyId"`
	CustomerName    string  `json:"customerName"`
	IncidentDate    string  `json:"incidentDate"`
	IncidentType    string  `json:"incidentType"`
	Description     string  `json:"description"`
	Location        string  `json:"location"`
	EstimatedDamage float64 `json:"estimatedDamage"`
}

// Result is what the endpoint answered
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

// Sink receives one payload per completed call
type Sink interface {
	Deliver(ctx context.Context, payload Payload) (*Result, error)
}

// NewPayload fills the ticket from a claim, substituting defaults for missing fields
func NewPayload(claim model.ClaimRecord, now time.Time) Payload {
	p := Payload{
		PolicyID:     orDefault(claim.Get(model.FieldPolicyID), "UNKNOWN"),
		CustomerName: orDefault(claim.Get(model.FieldCustomerName), "UNKNOWN"),
		IncidentDate: orDefault(claim.Get(model.FieldIncidentDate), now.Format("2006-01-02")),
		IncidentType: orDefault(claim.Get(model.FieldIncidentType), "unspecified"),
		Description:  claim.Get(model.FieldDescription),
		Location:     orDefault(claim.Get(model.FieldLocation), "unspecified"),
	}
	p.EstimatedDamage = parseAmount(claim.Get(model.FieldEstimatedDamage))
	return p
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// parseAmount reads "1500", "$1,500.50" or "1500 dollars"; unparseable text is 0
func parseAmount(v string) float64 {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' || r == '.' {
			b.WriteRune(r)
			continue
		}
		if r == ',' || r == '$' || r == ' ' {
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
