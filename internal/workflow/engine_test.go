package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GenerateJSONFunc    func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GetModelFunc        func(tier llm.ModelTier) string
	CloseFunc           func() error
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return "{}", nil
}

func (m *MockLLMClient) GetModel(tier llm.ModelTier) string {
	if m.GetModelFunc != nil {
		return m.GetModelFunc(tier)
	}
	return "mock-model"
}

func (m *MockLLMClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// mockSink records escalated tickets in memory
type mockSink struct {
	records []*types.TicketState
	err     error
}

func (s *mockSink) Record(ticket *types.TicketState) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, ticket)
	return nil
}

// isReviewPrompt distinguishes review calls from draft calls; both use the
// standard tier but only the review prompt asks for a RESULT line.
func isReviewPrompt(prompt string) bool {
	return strings.Contains(prompt, "RESULT:")
}

// scriptedClient classifies to the given category and answers each review
// from the verdicts list in order.
func scriptedClient(t *testing.T, category string, verdicts []string) *MockLLMClient {
	t.Helper()
	reviewCount := 0
	draftCount := 0
	return &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			if tier == llm.TierLite {
				return category, nil
			}
			if isReviewPrompt(prompt) {
				require.Less(t, reviewCount, len(verdicts), "unexpected extra review call")
				verdict := verdicts[reviewCount]
				reviewCount++
				return verdict, nil
			}
			draftCount++
			return "Draft response #" + strings.Repeat("!", draftCount), nil
		},
	}
}

func TestResolve_ApprovedFirstPass(t *testing.T) {
	sink := &mockSink{}
	client := scriptedClient(t, "billing", []string{
		"RESULT: APPROVED\nFEEDBACK: Clear and accurate",
	})
	engine := NewEngine(client, nil, sink)

	ticket := types.NewTicket("Refund request", "I was double charged last month")
	state, err := engine.Resolve(context.Background(), ticket)

	require.NoError(t, err)
	assert.Equal(t, StateApproved, state)
	assert.Equal(t, types.CategoryBilling, ticket.Category)
	assert.True(t, ticket.Approved)
	assert.Equal(t, 0, ticket.Attempts)
	assert.Empty(t, ticket.FailedDrafts)
	assert.Equal(t, "Clear and accurate", ticket.ReviewerFeedback)
	assert.Empty(t, sink.records, "approved tickets must not be escalated")
}

func TestResolve_ApprovedAfterOneRejection(t *testing.T) {
	sink := &mockSink{}
	client := scriptedClient(t, "technical", []string{
		"RESULT: REJECTED\nFEEDBACK: Missing troubleshooting steps",
		"RESULT: APPROVED\nFEEDBACK: Much better",
	})
	engine := NewEngine(client, nil, sink)

	ticket := types.NewTicket("App crashes", "Crashes on startup every time")
	state, err := engine.Resolve(context.Background(), ticket)

	require.NoError(t, err)
	assert.Equal(t, StateApproved, state)
	assert.Equal(t, 1, ticket.Attempts)
	assert.Len(t, ticket.FailedDrafts, 1)
	assert.Equal(t, "Much better", ticket.ReviewerFeedback)
	assert.Empty(t, sink.records)
}

func TestResolve_EscalatesAfterMaxRejections(t *testing.T) {
	sink := &mockSink{}
	client := scriptedClient(t, "security", []string{
		"RESULT: REJECTED\nFEEDBACK: Too vague",
		"RESULT: REJECTED\nFEEDBACK: Still too vague",
	})
	engine := NewEngine(client, nil, sink)

	ticket := types.NewTicket("Account compromised", "Someone logged in from another country")
	state, err := engine.Resolve(context.Background(), ticket)

	require.NoError(t, err)
	assert.Equal(t, StateEscalated, state)
	assert.Equal(t, MaxRejections, ticket.Attempts)
	assert.Len(t, ticket.FailedDrafts, 2, "each rejected draft must be archived exactly once")
	assert.NotEqual(t, ticket.FailedDrafts[0], ticket.FailedDrafts[1])
	assert.Equal(t, "Still too vague", ticket.ReviewerFeedback)
	require.Len(t, sink.records, 1, "exactly one escalation record per ticket")
	assert.Same(t, ticket, sink.records[0])
}

func TestResolve_EscalationPersistFailureIsFatal(t *testing.T) {
	sink := &mockSink{err: errors.New("disk full")}
	client := scriptedClient(t, "general", []string{
		"RESULT: REJECTED\nFEEDBACK: No",
		"RESULT: REJECTED\nFEEDBACK: Still no",
	})
	engine := NewEngine(client, nil, sink)

	ticket := types.NewTicket("Help", "Something is wrong")
	state, err := engine.Resolve(context.Background(), ticket)

	require.Error(t, err)
	assert.Equal(t, StateEscalated, state)
	assert.Contains(t, err.Error(), "disk full")
}

func TestResolve_MalformedReviewCountsAsRejection(t *testing.T) {
	sink := &mockSink{}
	client := scriptedClient(t, "billing", []string{
		"Looks fine to me!",
		"RESULT: APPROVED\nFEEDBACK: ok",
	})
	engine := NewEngine(client, nil, sink)

	ticket := types.NewTicket("Invoice question", "Where can I download my invoice?")
	state, err := engine.Resolve(context.Background(), ticket)

	require.NoError(t, err)
	assert.Equal(t, StateApproved, state)
	assert.Equal(t, 1, ticket.Attempts, "malformed review output must count as a rejection")
	require.Len(t, ticket.FailedDrafts, 1)
}

func TestClassify_ServiceErrorDefaultsToGeneral(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", errors.New("API rate limit exceeded")
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	category := engine.Classify(context.Background(), ticket)

	assert.Equal(t, types.CategoryGeneral, category)
}

func TestClassify_UnknownCategoryDefaultsToGeneral(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "shipping", nil
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	category := engine.Classify(context.Background(), ticket)

	assert.Equal(t, types.CategoryGeneral, category)
}

func TestClassify_NormalizesClassifierOutput(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "  Billing\n", nil
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	category := engine.Classify(context.Background(), ticket)

	assert.Equal(t, types.CategoryBilling, category)
}

func TestRetrieve_NilIndexFallback(t *testing.T) {
	engine := NewEngine(&MockLLMClient{}, nil, &mockSink{})

	ticket := types.NewTicket("Login broken", "Cannot sign in")
	ticket.Category = types.CategoryTechnical
	fallback := engine.Retrieve(context.Background(), ticket)

	assert.Contains(t, fallback, "Knowledge index unavailable")
	assert.Contains(t, fallback, "technical")
	assert.Contains(t, fallback, "Login broken")
}

func TestDraft_GenerationFailureUsesApologyTemplate(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	ticket.Category = types.CategoryBilling
	draft := engine.Draft(context.Background(), ticket)

	assert.Contains(t, draft, "I apologize")
	assert.Contains(t, draft, "billing")
	assert.Equal(t, 0, ticket.Attempts, "a drafting failure is not a rejection")
}

func TestDraft_RetryPromptIncludesFeedback(t *testing.T) {
	var captured string
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
			captured = prompt
			return "Revised draft", nil
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	ticket.Draft = "First draft"
	ticket.RecordRejection("Needs a refund timeline")
	engine.Draft(context.Background(), ticket)

	assert.Contains(t, captured, "Needs a refund timeline")
	assert.Contains(t, captured, "attempt #2")
}

func TestReview_ServiceErrorCountsAsRejection(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	engine := NewEngine(client, nil, &mockSink{})

	ticket := types.NewTicket("Subject", "Description")
	ticket.Draft = "Some draft"
	engine.Review(context.Background(), ticket)

	assert.Equal(t, types.ReviewRejected, ticket.ReviewResult)
	assert.Equal(t, 1, ticket.Attempts)
	assert.Contains(t, ticket.ReviewerFeedback, "Review system error")
}

func TestRoute(t *testing.T) {
	engine := NewEngine(&MockLLMClient{}, nil, &mockSink{})

	tests := []struct {
		name     string
		approved bool
		attempts int
		want     Route
	}{
		{"approved ends", true, 0, RouteEnd},
		{"approved ends even at limit", true, MaxRejections, RouteEnd},
		{"first rejection retries", false, 1, RouteRetry},
		{"limit reached escalates", false, MaxRejections, RouteEscalate},
		{"past limit escalates", false, MaxRejections + 1, RouteEscalate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := types.NewTicket("s", "d")
			ticket.Approved = tt.approved
			ticket.Attempts = tt.attempts
			assert.Equal(t, tt.want, engine.Route(ticket))
		})
	}
}

func TestParseReview(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantResult   types.ReviewResult
		wantFeedback string
	}{
		{
			name:         "approved",
			content:      "RESULT: APPROVED\nFEEDBACK: Good answer",
			wantResult:   types.ReviewApproved,
			wantFeedback: "Good answer",
		},
		{
			name:         "rejected",
			content:      "RESULT: REJECTED\nFEEDBACK: Missing details",
			wantResult:   types.ReviewRejected,
			wantFeedback: "Missing details",
		},
		{
			name:         "bracketed result",
			content:      "RESULT: [APPROVED]\nFEEDBACK: fine",
			wantResult:   types.ReviewApproved,
			wantFeedback: "fine",
		},
		{
			name:         "lowercase result",
			content:      "RESULT: approved\nFEEDBACK: ok",
			wantResult:   types.ReviewApproved,
			wantFeedback: "ok",
		},
		{
			name:         "missing feedback gets default",
			content:      "RESULT: REJECTED",
			wantResult:   types.ReviewRejected,
			wantFeedback: "Review parsing failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, feedback := parseReview(tt.content)
			assert.Equal(t, tt.wantResult, result)
			assert.Equal(t, tt.wantFeedback, feedback)
		})
	}
}

func TestParseReview_MalformedOutput(t *testing.T) {
	result, feedback := parseReview("The draft seems acceptable overall.")

	assert.Equal(t, types.ReviewRejected, result)
	assert.Contains(t, feedback, "Malformed review output")
	assert.Contains(t, feedback, "The draft seems acceptable")
}

func TestParseReview_TruncatesLongMalformedOutput(t *testing.T) {
	_, feedback := parseReview(strings.Repeat("x", 500))

	assert.Contains(t, feedback, "...")
	assert.Less(t, len(feedback), 300)
}
