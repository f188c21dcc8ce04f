package db

// Step name constants for ticket run artifacts
const (
	StepTicket         = "ticket"
	StepClassification = "classification"
	StepContext        = "context"
	StepDraft          = "draft"
	StepReview         = "review"
	StepEscalation     = "escalation"
)

// Terminal status values for ticket runs
const (
	StatusApproved  = "approved"
	StatusEscalated = "escalated"
	StatusFailed    = "failed"
)
