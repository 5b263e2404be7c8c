package orchestrator

import (
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/webhook"
)

// EventType names what happened on the call
type EventType string

const (
	EventAssistantMessage EventType = "assistant_message"
	EventCaption          EventType = "caption"
	EventUserMessage      EventType = "user_message"
	EventClaimUpdate      EventType = "claim_update"
	EventStateChange      EventType = "state_change"
	EventTransfer         EventType = "transfer"
	EventCallComplete     EventType = "call_complete"
	EventTicketPosted     EventType = "ticket_posted"
	EventCallEnded        EventType = "call_ended"
)

// Event is one observable step of a call. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType          `json:"type"`
	CallID      string             `json:"call_id"`
	At          time.Time          `json:"at"`
	Text        string             `json:"text,omitempty"`
	Frustration float64            `json:"frustration,omitempty"`
	Claim       *model.ClaimRecord `json:"claim,omitempty"`
	From        string             `json:"from,omitempty"`
	To          string             `json:"to,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Ticket      *webhook.Result    `json:"ticket,omitempty"`
}
