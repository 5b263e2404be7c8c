package intake

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimvoice/internal/model"
)

// summaryParts pairs each spoken field with its phrase
var summaryParts = []struct {
	field  model.ClaimField
	format string
}{
	{model.FieldPolicyID, "policy number %s"},
	{model.FieldCustomerName, "under the name %s"},
	{model.FieldIncidentType, "for a %s"},
	{model.FieldLocation, "at %s"},
	{model.FieldIncidentDate, "on %s"},
}

// Summarize lists only the present fields, comma-joined
func Summarize(claim model.ClaimRecord) string {
	var parts []string
	for _, p := range summaryParts {
		if claim.Has(p.field) {
			parts = append(parts, fmt.Sprintf(p.format, claim.Get(p.field)))
		}
	}
	return strings.Join(parts, ", ")
}

// ConfirmationPrompt asks the caller to confirm the summary
func ConfirmationPrompt(claim model.ClaimRecord) string {
	return fmt.Sprintf("Let me confirm: I have %s. Is this correct?", Summarize(claim))
}
