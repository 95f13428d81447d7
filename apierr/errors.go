// Package apierr defines the error taxonomy shared by the contract compiler
// and the request dispatcher: aggregated validation issues, authentication
// failures, and generic status-carrying errors, plus the JSON envelope they
// are rendered into.
package apierr

import (
	"fmt"
	"net/http"
	"strings"
)

// Location pinpoints the source of a validation issue within the request and
// within the contract document.
type Location struct {
	// In is the parameter location: path, query, header, cookie, server, or body.
	In string `json:"in"`
	// Name is the parameter name, or empty for body issues.
	Name string `json:"name,omitempty"`
	// DocPath is the JSON-pointer-style location of the offending definition
	// in the contract document, e.g. "/paths/~1pets/get/parameters/0".
	DocPath string `json:"docPath,omitempty"`
	// Path locates the failing value inside the parsed parameter or body,
	// e.g. "items/2/name". Empty when the issue concerns the whole value.
	Path string `json:"path,omitempty"`
}

// Issue is a single validation problem.
type Issue struct {
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
}

func (i Issue) String() string {
	if i.Location == nil {
		return i.Message
	}
	if i.Location.Name != "" {
		return fmt.Sprintf("%s.%s: %s", i.Location.In, i.Location.Name, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Location.In, i.Message)
}

// StatusCoder is implemented by errors that carry an HTTP status. The
// dispatcher converts such errors into JSON envelopes with that status;
// everything else propagates to the caller.
type StatusCoder interface {
	StatusCode() int
}

// ValidationError aggregates the issues found while parsing and validating a
// request's parameters and body. It is recoverable per request.
type ValidationError struct {
	Status int
	Issues []Issue
}

// NewValidationError builds a ValidationError with the default 400 status.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Status: http.StatusBadRequest, Issues: issues}
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + e.Issues[0].String()
	default:
		return fmt.Sprintf("validation failed: %s (and %d more)", e.Issues[0].String(), len(e.Issues)-1)
	}
}

func (e *ValidationError) StatusCode() int { return e.Status }

// AuthError reports that no security-requirement alternative was satisfied.
// Status is 401 when no credentials were presented and 403 when credentials
// were presented but rejected for missing scopes or roles.
type AuthError struct {
	Status  int
	Message string
	// Reasons holds one human-readable line per rejected credential.
	Reasons []string
}

func (e *AuthError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Reasons, "; ")
}

func (e *AuthError) StatusCode() int { return e.Status }

// StatusError is a bare status-carrying error for conditions like an
// unsupported media type or an oversized body.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) StatusCode() int { return e.Status }

// Envelope is the JSON error body written for any status-carrying error.
type Envelope struct {
	Message string  `json:"message"`
	Errors  []Issue `json:"errors,omitempty"`
}

// EnvelopeFor renders err into its HTTP status and JSON envelope. Errors that
// do not carry a status map to 500 with a generic message so that internal
// details never leak onto the wire.
func EnvelopeFor(err error) (int, Envelope) {
	switch e := err.(type) {
	case *ValidationError:
		return e.Status, Envelope{Message: "validation failed", Errors: e.Issues}
	case *AuthError:
		issues := make([]Issue, 0, len(e.Reasons))
		for _, r := range e.Reasons {
			issues = append(issues, Issue{Message: r})
		}
		return e.Status, Envelope{Message: e.Message, Errors: issues}
	case StatusCoder:
		return e.StatusCode(), Envelope{Message: err.Error()}
	default:
		return http.StatusInternalServerError, Envelope{Message: "internal server error"}
	}
}
