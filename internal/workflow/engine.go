// Package workflow provides the state machine that resolves support tickets
// through classification, retrieval, drafting, and review, with bounded
// retries and escalation to a human after repeated rejections.
package workflow

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/support-agent/internal/db"
	"github.com/jonathan/support-agent/internal/escalation"
	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/prompts"
	"github.com/jonathan/support-agent/internal/retrieval"
	"github.com/jonathan/support-agent/internal/types"
)

// promptFile is the embedded prompt template file for all workflow steps.
const promptFile = "workflow.json"

// Engine sequences the resolution steps for a ticket and enforces the
// retry/escalation contract. One engine may resolve many tickets, but each
// TicketState is owned by a single Resolve call for its lifetime. The
// retrieval index is read-only and the sink serializes its own writes, so
// engines over disjoint tickets may run concurrently.
type Engine struct {
	client llm.Client
	index  *retrieval.Index
	sink   escalation.Sink
	store  *db.Store
	out    io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress directs step-by-step progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithStore enables persistence of per-step artifacts. Store failures are
// reported as warnings and never interrupt ticket resolution.
func WithStore(store *db.Store) Option {
	return func(e *Engine) { e.store = store }
}

// NewEngine creates a workflow engine. The index may be nil when no
// knowledge base is available; retrieval then degrades to a fallback
// context. The sink must not be nil.
func NewEngine(client llm.Client, index *retrieval.Index, sink escalation.Sink, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		index:  index,
		sink:   sink,
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve drives a ticket from Received to a terminal state. It returns the
// terminal state reached. The only fatal error is a failure to persist an
// escalation record; every external-service failure inside a step degrades
// to the step's fallback and the pipeline continues.
func (e *Engine) Resolve(ctx context.Context, ticket *types.TicketState) (State, error) {
	var runID uuid.UUID
	if e.store != nil {
		var err error
		runID, err = e.store.CreateTicketRun(ctx, ticket.Subject, ticket.Description)
		if err != nil {
			fmt.Fprintf(e.out, "Warning: failed to create ticket run: %v\n", err)
			runID = uuid.Nil
		}
		e.saveArtifact(ctx, runID, db.StepTicket, map[string]string{
			"subject":     ticket.Subject,
			"description": ticket.Description,
		})
	}

	fmt.Fprintf(e.out, "Classifying ticket...\n")
	ticket.Category = e.Classify(ctx, ticket)
	fmt.Fprintf(e.out, "Ticket classified as: %s\n", ticket.Category)
	e.saveArtifact(ctx, runID, db.StepClassification, map[string]string{"category": string(ticket.Category)})

	fmt.Fprintf(e.out, "Retrieving context for %q...\n", ticket.SearchQuery())
	ticket.Context = e.Retrieve(ctx, ticket)
	e.saveArtifact(ctx, runID, db.StepContext, map[string]string{"context": ticket.Context})

	for {
		fmt.Fprintf(e.out, "Generating draft (attempt #%d)...\n", ticket.Attempts+1)
		ticket.Draft = e.Draft(ctx, ticket)
		e.saveArtifact(ctx, runID, db.StepDraft, map[string]string{
			"draft":   ticket.Draft,
			"attempt": strconv.Itoa(ticket.Attempts + 1),
		})

		fmt.Fprintf(e.out, "Reviewing draft...\n")
		e.Review(ctx, ticket)
		e.saveArtifact(ctx, runID, db.StepReview, map[string]string{
			"result":   string(ticket.ReviewResult),
			"feedback": ticket.ReviewerFeedback,
		})

		switch route := e.Route(ticket); route {
		case RouteEnd:
			fmt.Fprintf(e.out, "Response approved.\n")
			e.completeRun(ctx, runID, db.StatusApproved)
			return StateApproved, nil

		case RouteRetry:
			fmt.Fprintf(e.out, "Draft rejected (attempt %d of %d): %s\n",
				ticket.Attempts, MaxRejections, ticket.ReviewerFeedback)

		case RouteEscalate:
			fmt.Fprintf(e.out, "Retries exhausted, escalating to a human...\n")
			if err := e.Escalate(ticket); err != nil {
				e.completeRun(ctx, runID, db.StatusFailed)
				return StateEscalated, err
			}
			e.saveArtifact(ctx, runID, db.StepEscalation, ticket)
			e.completeRun(ctx, runID, db.StatusEscalated)
			return StateEscalated, nil

		default:
			return StateUnderReview, fmt.Errorf("unknown route %v", route)
		}
	}
}

// Classify determines the ticket category. It never fails past this
// boundary: a service error or unrecognized output defaults to general.
func (e *Engine) Classify(ctx context.Context, ticket *types.TicketState) types.Category {
	categoryNames := make([]string, 0, len(types.Categories()))
	for _, c := range types.Categories() {
		categoryNames = append(categoryNames, string(c))
	}

	prompt := prompts.Format(prompts.MustGet(promptFile, "classify-ticket"), map[string]string{
		"Categories":  strings.Join(categoryNames, ", "),
		"Subject":     ticket.Subject,
		"Description": ticket.Description,
	})

	raw, err := e.client.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		fmt.Fprintf(e.out, "Warning: classification failed: %v. Defaulting to '%s'.\n", err, types.CategoryGeneral)
		return types.CategoryGeneral
	}

	category, ok := types.ParseCategory(raw)
	if !ok {
		fmt.Fprintf(e.out, "Warning: unknown category %q. Defaulting to '%s'.\n", strings.TrimSpace(raw), types.CategoryGeneral)
	}
	return category
}

// Retrieve builds the retrieval query and produces the drafting context.
// Both failure paths are non-fatal: when nothing matches, the context is a
// fixed guidance block naming the category and query; when retrieval itself
// fails, it is a distinct fallback naming the failure.
func (e *Engine) Retrieve(ctx context.Context, ticket *types.TicketState) string {
	query := ticket.SearchQuery()

	if e.index == nil {
		fmt.Fprintf(e.out, "Warning: knowledge index unavailable, using fallback context\n")
		return fmt.Sprintf("Knowledge index unavailable. Handle %s issue: %s", ticket.Category, ticket.Subject)
	}

	results, err := e.index.Match(ctx, string(ticket.Category), query, TopKDocuments)
	if err != nil {
		fmt.Fprintf(e.out, "Warning: retrieval failed: %v\n", err)
		return fmt.Sprintf("Context retrieval failed for this %s issue: %q\nPlease provide general helpful guidance and escalate if needed.",
			ticket.Category, ticket.Subject)
	}

	if len(results) == 0 {
		fmt.Fprintf(e.out, "No relevant documents found, using fallback guidance\n")
		return noMatchGuidance(ticket.Category, query)
	}

	fmt.Fprintf(e.out, "Retrieved %d relevant documents\n", len(results))
	return retrieval.FormatContext(results, query)
}

// Draft generates a candidate response. The first attempt uses the initial
// prompt; retries embed the latest reviewer feedback. A generation failure
// substitutes an apology template and is NOT counted as a rejection.
func (e *Engine) Draft(ctx context.Context, ticket *types.TicketState) string {
	data := map[string]string{
		"Subject":     ticket.Subject,
		"Description": ticket.Description,
		"Category":    string(ticket.Category),
		"Context":     ticket.Context,
	}

	key := "draft-initial"
	if ticket.Attempts > 0 && ticket.ReviewerFeedback != "" {
		key = "draft-retry"
		data["Feedback"] = ticket.ReviewerFeedback
		data["AttemptNumber"] = strconv.Itoa(ticket.Attempts + 1)
	}

	prompt := prompts.Format(prompts.MustGet(promptFile, key), data)
	draft, err := e.client.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		fmt.Fprintf(e.out, "Warning: draft generation failed: %v\n", err)
		return fmt.Sprintf("I apologize for the technical difficulty in generating a response. Please contact support directly for assistance with your %s inquiry.",
			ticket.Category)
	}
	return strings.TrimSpace(draft)
}

// Review evaluates the current draft. Approval marks the ticket terminal;
// rejection records the failed draft, increments the attempt counter, and
// stores the feedback. Malformed reviewer output and review-service errors
// are deliberately treated as rejections: ambiguity is punished, never
// silently approved.
func (e *Engine) Review(ctx context.Context, ticket *types.TicketState) {
	prompt := prompts.Format(prompts.MustGet(promptFile, "review-draft"), map[string]string{
		"Subject":     ticket.Subject,
		"Description": ticket.Description,
		"Category":    string(ticket.Category),
		"Context":     ticket.Context,
		"Draft":       ticket.Draft,
	})

	content, err := e.client.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		ticket.RecordRejection(fmt.Sprintf("Review system error: %v", err))
		return
	}

	result, feedback := parseReview(content)
	if result == types.ReviewApproved {
		ticket.RecordApproval(feedback)
		return
	}
	ticket.RecordRejection(feedback)
}

// Route decides what happens after a review. It must run strictly after
// Review has mutated the attempt counter: a rejection that brings attempts
// to MaxRejections routes to escalation, not another retry.
func (e *Engine) Route(ticket *types.TicketState) Route {
	if ticket.Approved {
		return RouteEnd
	}
	if ticket.Attempts >= MaxRejections {
		return RouteEscalate
	}
	return RouteRetry
}

// Escalate hands the terminal ticket to the escalation sink. A persistence
// failure is surfaced to the caller; losing an escalation record is a
// correctness violation.
func (e *Engine) Escalate(ticket *types.TicketState) error {
	return e.sink.Record(ticket)
}

// parseReview parses the reviewer's two-line structured answer. An
// unrecognized or missing RESULT token yields a rejection with diagnostic
// feedback noting the malformed output.
func parseReview(content string) (types.ReviewResult, string) {
	var resultLine, feedbackLine string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if resultLine == "" && strings.HasPrefix(trimmed, "RESULT:") {
			resultLine = strings.TrimSpace(strings.TrimPrefix(trimmed, "RESULT:"))
		}
		if feedbackLine == "" && strings.HasPrefix(trimmed, "FEEDBACK:") {
			feedbackLine = strings.TrimSpace(strings.TrimPrefix(trimmed, "FEEDBACK:"))
		}
	}

	feedback := feedbackLine
	if feedback == "" {
		feedback = "Review parsing failed"
	}

	switch strings.ToUpper(strings.Trim(resultLine, "[]")) {
	case "APPROVED":
		return types.ReviewApproved, feedback
	case "REJECTED":
		return types.ReviewRejected, feedback
	default:
		return types.ReviewRejected, fmt.Sprintf("Malformed review output: %s", truncate(content, 200))
	}
}

// noMatchGuidance is the fixed-shape fallback context used when retrieval
// finds nothing relevant.
func noMatchGuidance(category types.Category, query string) string {
	return fmt.Sprintf(`No specific documentation found for this %s issue: %q

General guidance:
- Acknowledge the customer's concern professionally
- Provide helpful information based on standard support practices
- Escalate if the issue seems complex or requires specialized knowledge`, category, query)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (e *Engine) saveArtifact(ctx context.Context, runID uuid.UUID, step string, content any) {
	if e.store == nil || runID == uuid.Nil {
		return
	}
	if err := e.store.SaveArtifact(ctx, runID, step, content); err != nil {
		fmt.Fprintf(e.out, "Warning: failed to save %s artifact: %v\n", step, err)
	}
}

func (e *Engine) completeRun(ctx context.Context, runID uuid.UUID, status string) {
	if e.store == nil || runID == uuid.Nil {
		return
	}
	if err := e.store.CompleteTicketRun(ctx, runID, status); err != nil {
		fmt.Fprintf(e.out, "Warning: failed to complete ticket run: %v\n", err)
	}
}
