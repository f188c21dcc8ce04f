package escalation

import "fmt"

// PersistError represents a failure to durably record an escalation.
// Losing an escalation record is a correctness violation, so these errors
// are fatal to the escalation operation.
type PersistError struct {
	Message string
	Cause   error
}

func (e *PersistError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("escalation persist error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("escalation persist error: %s", e.Message)
}

func (e *PersistError) Unwrap() error {
	return e.Cause
}
