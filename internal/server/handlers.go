package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/jonathan/support-agent/internal/types"
	"github.com/jonathan/support-agent/internal/workflow"
)

// TicketResponse represents the response for POST /tickets
type TicketResponse struct {
	State        string   `json:"state"`
	Category     string   `json:"category"`
	Response     string   `json:"response,omitempty"`
	Attempts     int      `json:"attempts"`
	FailedDrafts []string `json:"failed_drafts,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
}

// handleResolveTicket runs one ticket through the workflow and returns its
// terminal state.
func (s *Server) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	var req types.TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid ticket: "+err.Error())
		return
	}

	engineOpts := []workflow.Option{}
	if s.store != nil {
		engineOpts = append(engineOpts, workflow.WithStore(s.store))
	}
	engine := workflow.NewEngine(s.client, s.index, s.sink, engineOpts...)

	ticket := types.NewTicket(req.Subject, req.Description)
	state, err := engine.Resolve(r.Context(), ticket)
	if err != nil {
		// Escalation record loss is a correctness violation; report it.
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := TicketResponse{
		State:        string(state),
		Category:     string(ticket.Category),
		Attempts:     ticket.Attempts,
		FailedDrafts: ticket.FailedDrafts,
	}
	if state == workflow.StateApproved {
		resp.Response = ticket.Draft
	} else {
		resp.Feedback = ticket.ReviewerFeedback
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// handleHealth reports server liveness
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response with the given status code
func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// errorResponse writes a JSON error response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
