package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by store lookups for unknown identity keys.
var ErrNotFound = errors.New("record not found")

// InvalidRecordError marks a malformed raw job. Intake logs and skips
// the item; the batch continues.
type InvalidRecordError struct {
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: %s", e.Reason)
}

// InvalidTransitionError is returned when a caller attempts a state
// change the lifecycle graph does not permit. No state is mutated.
type InvalidTransitionError struct {
	IdentityKey string
	From        State
	To          State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.IdentityKey, e.From, e.To)
}

// NotReadyError is returned when dispatch preconditions are unmet
// (wrong state, missing recipient). No side effects.
type NotReadyError struct {
	IdentityKey string
	Reason      string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("record %s not ready: %s", e.IdentityKey, e.Reason)
}

// TransportError wraps a mailer failure. For sends it is recovered
// locally by transitioning to send_failed; for polling it is retried on
// the next scheduled scan.
type TransportError struct {
	Op  string // "send", "poll_bounces", "poll_messages"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IntegrityError marks a violation of the compare-and-set discipline
// (duplicate identity insert, transition on an unknown key). These are
// programming errors and must fail loudly.
type IntegrityError struct {
	IdentityKey string
	Reason      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("store integrity violation for %s: %s", e.IdentityKey, e.Reason)
}

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
