// Package escalation provides the durable record of tickets handed off to a
// human after exhausting automated retries.
package escalation

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/support-agent/internal/types"
)

// draftSeparator joins multiple failed drafts into the single CSV field.
const draftSeparator = "; "

// header is the fixed column schema of the escalation log. Order is part of
// the persisted format; do not reorder.
var header = []string{"timestamp", "subject", "description", "attempts", "feedback", "failed_drafts"}

// Sink records escalated tickets for human follow-up.
type Sink interface {
	// Record appends exactly one escalation record. Failure to persist is
	// an error the caller must surface, not swallow.
	Record(ticket *types.TicketState) error
}

// CSVSink is an append-only CSV file sink. Writes are serialized with a
// mutex so concurrent workflow engines can share one sink.
type CSVSink struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewCSVSink creates a sink backed by the CSV file at path. The file is
// created with a header row on first write.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path, now: time.Now}
}

// Record appends one escalation row with a wall-clock ISO-8601 timestamp.
// Existing records are never rewritten or deleted.
func (s *CSVSink) Record(ticket *types.TicketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeHeader, err := s.needsHeader()
	if err != nil {
		return &PersistError{Message: "failed to inspect escalation log", Cause: err}
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistError{Message: "failed to open escalation log", Cause: err}
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(header); err != nil {
			return &PersistError{Message: "failed to write escalation log header", Cause: err}
		}
	}

	record := []string{
		s.now().Format(time.RFC3339),
		ticket.Subject,
		ticket.Description,
		strconv.Itoa(ticket.Attempts),
		ticket.ReviewerFeedback,
		strings.Join(ticket.FailedDrafts, draftSeparator),
	}
	if err := writer.Write(record); err != nil {
		return &PersistError{Message: "failed to write escalation record", Cause: err}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &PersistError{Message: "failed to flush escalation record", Cause: err}
	}
	return nil
}

// needsHeader reports whether the backing file is missing or empty.
func (s *CSVSink) needsHeader() (bool, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}
