package subscription

import "github.com/google/uuid"

// Outcome is the result category of processing one billing event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Result reports how an event was handled. Rejected results carry the Reason;
// they are soft failures the provider should not redeliver.
type Result struct {
	Outcome        Outcome
	Kind           EventKind
	SubscriptionID string
	UserID         uuid.UUID
	Reason         error
}

// OK reports whether the event was accepted.
func (r Result) OK() bool {
	return r.Outcome != OutcomeRejected
}

func (r Result) with(outcome Outcome) Result {
	r.Outcome = outcome
	return r
}

func (r Result) reject(reason error) Result {
	r.Outcome = OutcomeRejected
	r.Reason = reason
	return r
}
