// Package connector defines the network collaborator a session submits
// through, and the closed set of submission outcomes.
package connector

import (
	"context"

	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// Connector talks to one remote repository.
//
// Post is called at most once per submission and must not partially apply a
// payload. Timeouts are the connector's responsibility; an error returned
// from Post is treated as a transport failure.
type Connector interface {
	Post(ctx context.Context, p mapper.Payload) (Result, error)
	FetchMetadata(ctx context.Context) (*metadata.Snapshot, error)
	FetchTask(ctx context.Context, id string) (*taskdata.Tree, error)
}

// Severity classifies a validation rejection.
type Severity string

const (
	// SeverityUnset lets the reconciler derive the severity from the reasons.
	SeverityUnset Severity = ""

	// SeverityNeedsConfirmation means a near match was found and the user
	// should confirm one of the candidates.
	SeverityNeedsConfirmation Severity = "needs-confirmation"

	// SeverityHardFailure means no resolution is possible without new input.
	SeverityHardFailure Severity = "hard-failure"
)

// MessagePrefix marks a rejection reason meant for direct display. Any
// other reason is a candidate value.
const MessagePrefix = "#msg#"

// Result is the outcome of a Post. It is one of Accepted,
// ValidationRejected or TransportFailed.
type Result interface {
	result()
}

// Accepted means the backend applied the submission.
type Accepted struct {
	Reference string
}

// ValidationRejected means the backend refused specific fields.
type ValidationRejected struct {
	FieldErrors FieldErrors
	Severity    Severity
}

// TransportFailed means the submission did not reach a verdict.
type TransportFailed struct {
	Cause error
}

func (Accepted) result()           {}
func (ValidationRejected) result() {}
func (TransportFailed) result()    {}

// Error implements error so a transport failure can be returned as one.
func (t TransportFailed) Error() string {
	if t.Cause == nil {
		return "transport failed"
	}
	return "transport failed: " + t.Cause.Error()
}

// Unwrap returns the cause.
func (t TransportFailed) Unwrap() error { return t.Cause }
