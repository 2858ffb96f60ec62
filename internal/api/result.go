package api

import (
	"errors"
	"fmt"
)

// ErrAuthExpired is the error carried by every result whose response was a 401.
var ErrAuthExpired = errors.New("session expired: credentials rejected by backend")

// Outcome tags how a backend call ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeAuthExpired
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned by every client call instead of a bare error so callers
// switch on Outcome rather than inspecting status codes themselves.
type Result struct {
	Outcome Outcome
	Status  int    // HTTP status, 0 when the request never got a response
	Detail  string // the backend's "error" field, when it sent one
	Err     error
}

func ok(status int) Result {
	return Result{Outcome: OutcomeOK, Status: status}
}

func failed(status int, err error) Result {
	return Result{Outcome: OutcomeFailed, Status: status, Err: err}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Expired reports whether the call ended the session.
func (r Result) Expired() bool { return r.Outcome == OutcomeAuthExpired }

// Message is the text shown to a user: the backend detail when present,
// otherwise the transport error.
func (r Result) Message() string {
	if r.Detail != "" {
		return r.Detail
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// Error lets a failed Result travel as an error value.
func (r Result) Error() string {
	if r.OK() {
		return ""
	}
	if r.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", r.Outcome, r.Status, r.Message())
	}
	return fmt.Sprintf("%s: %s", r.Outcome, r.Message())
}

// AsError returns nil for a successful result and the result itself otherwise.
func (r Result) AsError() error {
	if r.OK() {
		return nil
	}
	return r
}

// Unwrap exposes the underlying error to errors.Is.
func (r Result) Unwrap() error { return r.Err }
