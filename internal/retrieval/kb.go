package retrieval

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/support-agent/internal/schemas"
	"github.com/jonathan/support-agent/internal/types"
)

// LoadError represents an error during knowledge-base file I/O or parsing
type LoadError struct {
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("knowledge base load error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("knowledge base load error: %s", e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// LoadKnowledgeBase reads a JSON file mapping category names to document
// texts, validating it against the knowledge-base schema before decoding.
func LoadKnowledgeBase(path string) (types.KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("failed to read %s", path), Cause: err}
	}

	if err := schemas.ValidateKnowledgeBase(data); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("invalid knowledge base %s", path), Cause: err}
	}

	var kb types.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("failed to parse %s", path), Cause: err}
	}

	return kb, nil
}

// StarterKnowledgeBase returns a small knowledge base covering the four
// supported categories, used by `kb init` to seed a new installation.
func StarterKnowledgeBase() types.KnowledgeBase {
	return types.KnowledgeBase{
		"billing": {
			"Refunds are processed within 5-7 business days to the original payment method. Customers can request a refund from the Billing page or by replying to their invoice email.",
			"Declined card payments are usually caused by expired cards, insufficient funds, or bank fraud holds. Ask the customer to verify card details and contact their bank if the decline persists.",
			"Subscription upgrades take effect immediately and are prorated. Downgrades take effect at the start of the next billing cycle.",
		},
		"technical": {
			"If the application fails to load, ask the customer to clear the browser cache, disable extensions, and retry in a private window before escalating.",
			"API rate limits are 600 requests per minute per key. Exceeding the limit returns HTTP 429 with a Retry-After header.",
			"Data exports are generated asynchronously and emailed within 30 minutes. Exports larger than 1 GB are split into multiple archives.",
		},
		"security": {
			"Password resets require access to the account email. Support must never set a password directly; send the self-service reset link instead.",
			"Suspected account compromise: immediately revoke active sessions and API keys from the admin console, then advise the customer to rotate credentials.",
			"Two-factor authentication can be re-enrolled after identity verification with the billing address and last four digits of the payment card.",
		},
		"general": {
			"Support hours are Monday through Friday, 9am to 6pm UTC. Tickets received outside these hours are answered the next business day.",
			"Feature requests should be acknowledged, logged in the product feedback tracker, and answered without promising delivery dates.",
		},
	}
}
