package workflow

// State identifies where a ticket is in the resolution pipeline.
type State string

// Pipeline states. RetryPending always transitions back to Drafted;
// classification and retrieval are never recomputed on retry. Approved and
// Escalated are terminal.
const (
	StateReceived     State = "received"
	StateClassified   State = "classified"
	StateRetrieved    State = "retrieved"
	StateDrafted      State = "drafted"
	StateUnderReview  State = "under_review"
	StateApproved     State = "approved"
	StateRetryPending State = "retry_pending"
	StateEscalated    State = "escalated"
)

// Route is the routing decision taken after each review.
type Route int

// Routing outcomes consumed by an exhaustive switch in Resolve.
const (
	RouteEnd Route = iota
	RouteRetry
	RouteEscalate
)

// String returns the route name for logs and artifacts.
func (r Route) String() string {
	switch r {
	case RouteEnd:
		return "end"
	case RouteRetry:
		return "retry"
	case RouteEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// MaxRejections is the number of review rejections tolerated before a
// ticket escalates. A ticket is drafted at most MaxRejections+1 times.
const MaxRejections = 2

// TopKDocuments is the number of knowledge-base passages retrieved per ticket.
const TopKDocuments = 3
