package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// TransferRequested is the output marker the engine checks after tool
// execution; a transfer tool result overrides the model's spoken action.
type TransferRequested struct {
	TransferRequested bool   `json:"transfer_requested"`
	Department        string `json:"department"`
}

// TransferTool lets the model hand the call to a human queue.
type TransferTool struct{}

func (TransferTool) Name() string { return "transfer_to_agent" }

func (TransferTool) Description() string {
	return "Transfer the caller to a human agent. Use when the caller asks for a person or the request is beyond your abilities."
}

func (TransferTool) InputSchema() string {
	return `{"type":"object","properties":{"department":{"type":"string","description":"Target department, e.g. billing or support"}},"required":[]}`
}

func (TransferTool) Execute(ctx context.Context, input string) (string, error) {
	var in struct {
		Department string `json:"department"`
	}
	_ = json.Unmarshal([]byte(input), &in)
	if in.Department == "" {
		in.Department = "general"
	}
	out, err := json.Marshal(TransferRequested{TransferRequested: true, Department: in.Department})
	return string(out), err
}

// AccountLookupTool surfaces customer account status. The stock
// implementation answers from the caller's number; a real deployment
// plugs a CRM behind the same contract.
type AccountLookupTool struct{}

func (AccountLookupTool) Name() string { return "lookup_account" }

func (AccountLookupTool) Description() string {
	return "Look up customer account information by account ID or the caller's phone number."
}

func (AccountLookupTool) InputSchema() string {
	return `{"type":"object","properties":{"account_id":{"type":"string","description":"Account ID; defaults to the caller's phone number"}},"required":[]}`
}

func (AccountLookupTool) Execute(ctx context.Context, input string) (string, error) {
	var in struct {
		AccountID string `json:"account_id"`
	}
	_ = json.Unmarshal([]byte(input), &in)

	out, err := json.Marshal(map[string]string{
		"account_id": in.AccountID,
		"status":     "active",
	})
	return string(out), err
}

// ScheduleTool books appointments. The stock implementation confirms a
// pending booking with a generated reference.
type ScheduleTool struct{}

func (ScheduleTool) Name() string { return "schedule_appointment" }

func (ScheduleTool) Description() string {
	return "Schedule an appointment for the caller. Collect date, time and appointment type first."
}

func (ScheduleTool) InputSchema() string {
	return `{"type":"object","properties":{"date":{"type":"string","description":"Appointment date, YYYY-MM-DD"},"time":{"type":"string","description":"Appointment time, e.g. 14:30"},"type":{"type":"string","description":"Appointment type"}},"required":["date","time"]}`
}

func (ScheduleTool) Execute(ctx context.Context, input string) (string, error) {
	var in struct {
		Date string `json:"date"`
		Time string `json:"time"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal([]byte(input), &in)
	if in.Type == "" {
		in.Type = "general"
	}

	out, err := json.Marshal(map[string]string{
		"appointment_id": uuid.New().String(),
		"date":           in.Date,
		"time":           in.Time,
		"type":           in.Type,
		"status":         "pending",
	})
	return string(out), err
}

// IsTransferResult reports whether a tool's JSON output requested a
// transfer to a human agent.
func IsTransferResult(output string) bool {
	var res TransferRequested
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		return false
	}
	return res.TransferRequested
}
