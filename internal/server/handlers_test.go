package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonathan/support-agent/internal/escalation"
	"github.com/jonathan/support-agent/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return "{}", nil
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

// approvingClient classifies everything as billing and approves the first draft
func approvingClient() *MockLLMClient {
	return &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			if tier == llm.TierLite {
				return "billing", nil
			}
			if strings.Contains(prompt, "RESULT:") {
				return "RESULT: APPROVED\nFEEDBACK: Looks good", nil
			}
			return "Here is your refund information.", nil
		},
	}
}

// rejectingClient rejects every draft, forcing escalation
func rejectingClient() *MockLLMClient {
	return &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			if tier == llm.TierLite {
				return "technical", nil
			}
			if strings.Contains(prompt, "RESULT:") {
				return "RESULT: REJECTED\nFEEDBACK: Not good enough", nil
			}
			return "Draft text.", nil
		},
	}
}

func testServer(t *testing.T, client llm.Client) *Server {
	t.Helper()
	return &Server{
		client: client,
		sink:   escalation.NewCSVSink(filepath.Join(t.TempDir(), "escalations.csv")),
	}
}

func postTicket(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handleResolveTicket(rec, req)
	return rec
}

func TestHandleResolveTicket_Approved(t *testing.T) {
	s := testServer(t, approvingClient())

	rec := postTicket(t, s, `{"subject": "Refund request", "description": "I was double charged"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "approved", resp.State)
	assert.Equal(t, "billing", resp.Category)
	assert.Equal(t, "Here is your refund information.", resp.Response)
	assert.Equal(t, 0, resp.Attempts)
	assert.Empty(t, resp.FailedDrafts)
}

func TestHandleResolveTicket_Escalated(t *testing.T) {
	s := testServer(t, rejectingClient())

	rec := postTicket(t, s, `{"subject": "App crashes", "description": "Crashes on startup"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "escalated", resp.State)
	assert.Equal(t, 2, resp.Attempts)
	assert.Len(t, resp.FailedDrafts, 1, "identical rejected drafts are archived once")
	assert.Equal(t, "Not good enough", resp.Feedback)
	assert.Empty(t, resp.Response, "escalated tickets carry no customer response")
}

func TestHandleResolveTicket_InvalidBody(t *testing.T) {
	s := testServer(t, approvingClient())

	rec := postTicket(t, s, `{"subject": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestHandleResolveTicket_MissingFields(t *testing.T) {
	s := testServer(t, approvingClient())

	rec := postTicket(t, s, `{"subject": "only a subject"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid ticket")
}

func TestHandleResolveTicket_EscalationPersistFailure(t *testing.T) {
	s := &Server{
		client: rejectingClient(),
		sink:   escalation.NewCSVSink(filepath.Join(t.TempDir(), "missing", "escalations.csv")),
	}

	rec := postTicket(t, s, `{"subject": "s", "description": "d"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "escalation persist error")
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, approvingClient())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
