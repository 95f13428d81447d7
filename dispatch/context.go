// Package dispatch runs live requests against a compiled contract: it
// resolves the operation, evaluates security, extracts and validates
// parameters and body, invokes the bound controller, and converts the
// outcome into a transport-agnostic Result.
package dispatch

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mark3labs/oasgate/contract"
	"github.com/mark3labs/oasgate/security"
)

// Context is the per-request state handed to hooks and controllers. It is
// owned by one request's execution and must not be retained past it.
type Context struct {
	// Request is the raw inbound request.
	Request *http.Request
	// RequestID tags every log line of this request.
	RequestID string
	// Operation is the matched contract operation.
	Operation *contract.Operation
	// Params holds the parsed, validated parameters by location.
	Params contract.Params
	// Body is the parsed, validated request body, or nil.
	Body any
	// Identity maps scheme names to the identities of the winning security
	// alternative. Empty for open operations.
	Identity security.IdentityMap
	// Log is the request-scoped logger.
	Log zerolog.Logger

	status    int
	header    http.Header
	body      io.Reader
	finalized bool
}

func newContext(req *http.Request, op *contract.Operation, logger zerolog.Logger) *Context {
	id := uuid.NewString()
	return &Context{
		Request:   req,
		RequestID: id,
		Operation: op,
		Log: logger.With().
			Str("request_id", id).
			Str("method", op.Method).
			Str("path", op.Template).
			Logger(),
		header: http.Header{},
	}
}

// Finalized reports whether a response has been produced. Once true, the
// dispatcher skips every remaining pipeline step. Implements
// security.Responder.
func (c *Context) Finalized() bool { return c.finalized }

// Header returns the staged response headers.
func (c *Context) Header() http.Header { return c.header }

// SetStatus stages the response status without finalizing. A controller can
// set a status and still return a value for the body.
func (c *Context) SetStatus(status int) { c.status = status }

// Respond finalizes the response with a raw body. Subsequent pipeline steps
// are skipped.
func (c *Context) Respond(status int, body []byte) {
	c.status = status
	c.body = bytes.NewReader(body)
	c.finalized = true
}

// RespondJSON finalizes the response with a JSON body, setting the content
// type unless one was already staged.
func (c *Context) RespondJSON(status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.header.Get("Content-Type") == "" {
		c.header.Set("Content-Type", "application/json")
	}
	c.Respond(status, data)
	return nil
}
