// Package types defines the shared data structures for ticket resolution.
package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Category identifies the support area a ticket belongs to.
type Category string

const (
	CategoryBilling   Category = "billing"
	CategoryTechnical Category = "technical"
	CategorySecurity  Category = "security"
	CategoryGeneral   Category = "general"
)

// Categories returns the known ticket categories in a stable order.
func Categories() []Category {
	return []Category{CategoryBilling, CategoryTechnical, CategorySecurity, CategoryGeneral}
}

// ParseCategory resolves a raw classifier output to a known category.
// Matching is case-insensitive and tolerates surrounding whitespace.
func ParseCategory(raw string) (Category, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range Categories() {
		if cleaned == string(c) {
			return c, true
		}
	}
	return CategoryGeneral, false
}

// ReviewResult captures the reviewer's verdict on a draft.
type ReviewResult string

const (
	ReviewPending  ReviewResult = "PENDING"
	ReviewApproved ReviewResult = "APPROVED"
	ReviewRejected ReviewResult = "REJECTED"
)

// TicketState carries a ticket through the resolution workflow. Fields are
// mutated in place as each step completes.
type TicketState struct {
	Subject          string       `json:"subject"`
	Description      string       `json:"description"`
	Category         Category     `json:"category"`
	Context          string       `json:"context"`
	Draft            string       `json:"draft"`
	Attempts         int          `json:"attempts"`
	FailedDrafts     []string     `json:"failed_drafts"`
	ReviewResult     ReviewResult `json:"review_result"`
	ReviewerFeedback string       `json:"reviewer_feedback"`
	Approved         bool         `json:"approved"`
}

// NewTicket creates a fresh ticket state for the given request text.
func NewTicket(subject, description string) *TicketState {
	return &TicketState{
		Subject:      subject,
		Description:  description,
		Category:     CategoryGeneral,
		ReviewResult: ReviewPending,
	}
}

// RecordRejection registers a rejected draft. The current draft is archived
// (once) and the rejection counter advances.
func (t *TicketState) RecordRejection(feedback string) {
	if t.Draft != "" && !t.hasFailedDraft(t.Draft) {
		t.FailedDrafts = append(t.FailedDrafts, t.Draft)
	}
	t.Attempts++
	t.ReviewResult = ReviewRejected
	t.ReviewerFeedback = feedback
	t.Approved = false
}

// RecordApproval marks the current draft as accepted.
func (t *TicketState) RecordApproval(feedback string) {
	t.ReviewResult = ReviewApproved
	t.ReviewerFeedback = feedback
	t.Approved = true
}

// SearchQuery builds the retrieval query from the ticket text.
func (t *TicketState) SearchQuery() string {
	query := strings.TrimSpace(t.Subject + " " + t.Description)
	if query == "" {
		return "general support"
	}
	return query
}

func (t *TicketState) hasFailedDraft(draft string) bool {
	for _, d := range t.FailedDrafts {
		if d == draft {
			return true
		}
	}
	return false
}

// TicketRequest is the inbound payload for resolving a ticket.
type TicketRequest struct {
	Subject     string `json:"subject" validate:"required,min=1"`
	Description string `json:"description" validate:"required,min=1"`
}

var validate = validator.New()

// Validate checks the request against its field constraints.
func (r *TicketRequest) Validate() error {
	return validate.Struct(r)
}
