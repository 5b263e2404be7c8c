package model

import "time"

// CallSummary describes how one call ended
type CallSummary struct {
	CallID         string        `json:"call_id" yaml:"call_id"`
	FinalState     string        `json:"final_state" yaml:"final_state"`
	Claim          ClaimRecord   `json:"claim" yaml:"claim"`
	Frustration    float64       `json:"frustration" yaml:"frustration"`
	Complete       bool          `json:"complete" yaml:"complete"`
	Transfer       bool          `json:"transfer" yaml:"transfer"`
	TransferReason string        `json:"transfer_reason,omitempty" yaml:"transfer_reason,omitempty"`
	EndReason      string        `json:"end_reason" yaml:"end_reason"`
	Turns          int           `json:"turns" yaml:"turns"`
	TicketPosted   bool          `json:"ticket_posted" yaml:"ticket_posted"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}
