package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mark3labs/oasgate/apierr"
	"github.com/mark3labs/oasgate/contract"
	"github.com/mark3labs/oasgate/security"
	"github.com/mark3labs/oasgate/styles"
)

// defaultMaxBodySize bounds request bodies when WithMaxBodySize is not given.
const defaultMaxBodySize = 10 << 20 // 10 MiB

// Hook runs before the controller, in registration order, while no response
// has been finalized. A hook may finalize the response to short-circuit the
// rest of the pipeline.
type Hook func(c *Context) error

// Runner dispatches requests against one compiled contract. It is built
// once and is safe for concurrent use.
type Runner struct {
	doc         *contract.Document
	controllers *Registry
	evaluator   *security.Evaluator
	hooks       []Hook
	autoErrors  bool
	maxBodySize int64
	logger      zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHook appends a pre-controller hook. Hooks run in registration order.
func WithHook(h Hook) Option {
	return func(r *Runner) { r.hooks = append(r.hooks, h) }
}

// WithAutoHandleErrors converts errors that carry no HTTP status into 500
// JSON envelopes instead of propagating them to the caller.
func WithAutoHandleErrors(auto bool) Option {
	return func(r *Runner) { r.autoErrors = auto }
}

// WithMaxBodySize bounds request bodies in bytes. Default 10 MiB.
func WithMaxBodySize(n int64) Option {
	return func(r *Runner) { r.maxBodySize = n }
}

// WithLogger sets the base logger; each request derives a sub-logger tagged
// with its request id.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner builds a Runner over a compiled document and controller table.
// The security evaluator is built from the authenticator table the document
// was compiled with.
func NewRunner(doc *contract.Document, controllers *Registry, opts ...Option) *Runner {
	r := &Runner{
		doc:         doc,
		controllers: controllers,
		maxBodySize: defaultMaxBodySize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.evaluator = security.NewEvaluator(doc.Authenticators(), security.WithLogger(r.logger))
	return r
}

// Dispatch runs the request pipeline. A (nil, nil) return means the request
// did not match any route; the caller decides between 404 and pass-through.
// Errors carrying an HTTP status come back as JSON-envelope Results; other
// errors propagate unless WithAutoHandleErrors is set.
func (r *Runner) Dispatch(ctx context.Context, req *http.Request) (*Result, error) {
	resolved, ok := r.doc.Resolve(req.Method, req.URL.EscapedPath(), req.Header)
	if !ok {
		return nil, nil
	}
	op := resolved.Operation

	controller, ok := r.controllers.lookup(op.ControllerID, op.OperationID)
	if !ok {
		// A compiled operation without a bound handler is a deployment
		// problem, not a request problem.
		return r.fail(nil, fmt.Errorf("dispatch: no controller bound for %s %s (%s#%s)",
			op.Method, op.Template, op.ControllerID, op.OperationID))
	}

	c := newContext(req, op, r.logger)
	c.Log.Debug().Msg("request resolved")

	identity, err := r.evaluator.Evaluate(ctx, op.Security, op.RequiredRoles, req, c)
	if err != nil {
		return r.fail(c, err)
	}
	c.Identity = identity

	for _, hook := range r.hooks {
		if c.finalized {
			break
		}
		if err := hook(c); err != nil {
			return r.fail(c, err)
		}
	}

	if !c.finalized {
		pc := styles.NewParseContext(req.URL.RawQuery)
		params, issues := op.ExtractParams(resolved, req, pc)
		body, bodyIssues, err := r.parseBody(op, req)
		if err != nil {
			return r.fail(c, err)
		}
		issues = append(issues, bodyIssues...)
		if len(issues) > 0 {
			return r.fail(c, apierr.NewValidationError(issues...))
		}
		c.Params = params
		c.Body = body
	}

	var out any
	if !c.finalized {
		out, err = controller(c)
		if err != nil {
			return r.fail(c, err)
		}
	}
	return c.result(out)
}

// parseBody selects the media-type entry for the request's content type,
// reads the payload within the size bound, and parses and validates it.
func (r *Runner) parseBody(op *contract.Operation, req *http.Request) (any, []apierr.Issue, error) {
	if op.Body == nil || req.Body == nil {
		if op.Body != nil && op.Body.Required {
			return nil, []apierr.Issue{missingBodyIssue(op)}, nil
		}
		return nil, nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, r.maxBodySize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: read request body: %w", err)
	}
	if int64(len(data)) > r.maxBodySize {
		return nil, nil, &apierr.StatusError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", r.maxBodySize),
		}
	}
	if len(data) == 0 {
		if op.Body.Required {
			return nil, []apierr.Issue{missingBodyIssue(op)}, nil
		}
		return nil, nil, nil
	}

	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	entry, ok := op.Body.Select(contentType)
	if !ok {
		return nil, nil, &apierr.StatusError{
			Status:  http.StatusUnsupportedMediaType,
			Message: fmt.Sprintf("unsupported media type %q", contentType),
		}
	}

	parsed, err := entry.Parser(data, req.Header)
	if err != nil {
		return nil, []apierr.Issue{{
			Message:  fmt.Sprintf("could not parse request body as %s: %v", entry.Pattern, err),
			Location: &apierr.Location{In: "body", DocPath: entry.DocPath},
		}}, nil
	}
	if parsed == nil {
		if op.Body.Required {
			return nil, []apierr.Issue{missingBodyIssue(op)}, nil
		}
		return nil, nil, nil
	}
	value, issues := entry.Validate(parsed)
	if len(issues) > 0 {
		return nil, issues, nil
	}
	return value, nil, nil
}

func missingBodyIssue(op *contract.Operation) apierr.Issue {
	return apierr.Issue{
		Message:  "missing required request body",
		Location: &apierr.Location{In: "body", DocPath: op.Body.DocPath},
	}
}

// fail converts err into a Result when it carries a status; otherwise it
// propagates, or becomes a 500 envelope under WithAutoHandleErrors.
func (r *Runner) fail(c *Context, err error) (*Result, error) {
	logger := r.logger
	if c != nil {
		logger = c.Log
	}
	var sc apierr.StatusCoder
	if errors.As(err, &sc) {
		logger.Debug().Err(err).Int("status", sc.StatusCode()).Msg("request rejected")
		status, envelope := apierr.EnvelopeFor(err)
		return errorResult(status, envelope), nil
	}
	if r.autoErrors {
		logger.Error().Err(err).Msg("request failed")
		status, envelope := apierr.EnvelopeFor(err)
		return errorResult(status, envelope), nil
	}
	return nil, err
}

// Resolve exposes route resolution without dispatching, for callers that
// only need to know whether and how a request would match.
func (r *Runner) Resolve(method, path string, header http.Header) (*contract.ResolvedOperation, bool) {
	return r.doc.Resolve(method, path, header)
}
