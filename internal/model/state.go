// Lifecycle state machine for job records.
//
// Valid state graph:
//
//	discovered ──► pending_review ──► approved ──► sent ──► responded ──► interview
//	                     │                │  ▲       │  │        │            │
//	                     ▼                ▼  │       │  ▼        ▼            ▼
//	            rejected_by_reviewer send_failed     │ bounced ◄─┴────────────┤
//	                                                 └──────────► closed ◄────┘
//
// bounced, closed, and rejected_by_reviewer are terminal. A bounce is
// authoritative over any response recorded for the same dispatch, so
// responded and interview both have an edge to bounced.
package model

import "fmt"

// State is a job record's lifecycle state.
type State string

const (
	StateDiscovered         State = "discovered"
	StatePendingReview      State = "pending_review"
	StateApproved           State = "approved"
	StateRejectedByReviewer State = "rejected_by_reviewer"
	StateSent               State = "sent"
	StateSendFailed         State = "send_failed"
	StateBounced            State = "bounced"
	StateResponded          State = "responded"
	StateInterview          State = "interview"
	StateClosed             State = "closed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StateDiscovered:    {StatePendingReview},
	StatePendingReview: {StateApproved, StateRejectedByReviewer},
	StateApproved:      {StateSent, StateSendFailed},
	StateSendFailed:    {StateApproved},
	StateSent:          {StateBounced, StateResponded, StateClosed},
	StateResponded:     {StateInterview, StateClosed, StateBounced},
	StateInterview:     {StateClosed, StateBounced},
	// bounced, closed, rejected_by_reviewer are terminal
}

// AllStates lists every valid state, in lifecycle order.
var AllStates = []State{
	StateDiscovered,
	StatePendingReview,
	StateApproved,
	StateRejectedByReviewer,
	StateSent,
	StateSendFailed,
	StateBounced,
	StateResponded,
	StateInterview,
	StateClosed,
}

// ParseState converts a raw string to a State, returning an error for
// unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	for _, known := range AllStates {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown record state %q", s)
}

// CanTransition returns true when moving from → to is permitted.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions.
func IsTerminal(s State) bool {
	return len(validTransitions[s]) == 0
}

// Dispatched returns true once a record has been sent at least once:
// sent or any state reachable only from sent. Responses may only attach
// to dispatched records.
func Dispatched(s State) bool {
	switch s {
	case StateSent, StateBounced, StateResponded, StateInterview, StateClosed:
		return true
	}
	return false
}

// PreTerminal returns true while a record may still be refreshed by
// re-ingestion (not yet reviewed out or dispatched).
func PreTerminal(s State) bool {
	return s == StateDiscovered || s == StatePendingReview
}
