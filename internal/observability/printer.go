// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/support-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintTicket outputs a human-readable summary of a ticket's current state.
func (p *Printer) PrintTicket(ticket *types.TicketState) {
	if ticket == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Subject:   %s\n", ticket.Subject))
	sb.WriteString(fmt.Sprintf("Category:  %s\n", ticket.Category))
	sb.WriteString(fmt.Sprintf("Review:    %s\n", ticket.ReviewResult))
	sb.WriteString(fmt.Sprintf("Attempts:  %d\n", ticket.Attempts))
	sb.WriteString(fmt.Sprintf("Approved:  %t", ticket.Approved))

	p.printBox("Ticket State", sb.String())
}

// PrintRetrievalResults outputs ranked knowledge-base matches.
func (p *Printer) PrintRetrievalResults(results []types.RetrievalResult, query string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Query: %s\n", query))
	if len(results) == 0 {
		sb.WriteString("No matches above the similarity floor")
	}
	for i, result := range results {
		sb.WriteString(fmt.Sprintf("%d. [%s %.1f%%] %s", i+1, result.Category, result.Similarity*100, result.Text))
		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("Retrieval Results", sb.String())
}

// PrintReview outputs the latest review verdict and feedback.
func (p *Printer) PrintReview(ticket *types.TicketState) {
	if ticket == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Result:   %s\n", ticket.ReviewResult))
	sb.WriteString(fmt.Sprintf("Feedback: %s", ticket.ReviewerFeedback))

	p.printBox("Quality Review", sb.String())
}

// PrintDraft outputs the current candidate response.
func (p *Printer) PrintDraft(draft string, attempt int) {
	p.printBox(fmt.Sprintf("Draft (attempt #%d)", attempt), draft)
}
