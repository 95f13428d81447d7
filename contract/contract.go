// Package contract compiles a dereferenced OpenAPI 3.x document into an
// immutable decision structure: path templates with compiled matchers,
// per-operation parameter parsers and schema validators, request-body media
// type registries, and resolved security requirements. Compilation happens
// once, ahead of traffic; the resulting Document is safe for unsynchronized
// concurrent reads.
package contract

import (
	"net/http"

	"github.com/mark3labs/oasgate/apierr"
	"github.com/mark3labs/oasgate/mediatype"
	"github.com/mark3labs/oasgate/security"
	"github.com/mark3labs/oasgate/styles"
)

// BodyParser turns a raw request payload into a value. The request headers
// are available for parsers that need charset or boundary parameters.
type BodyParser func(data []byte, header http.Header) (any, error)

// Validator validates a value against a compiled schema and returns the
// (possibly coerced) value together with any issues found.
type Validator func(value any) (any, []apierr.Issue)

// ControllerChecker reports whether a handler is bound for a controller and
// operation identifier pair. The compiler uses it to fail fast on operations
// that could never be dispatched.
type ControllerChecker interface {
	HasController(controllerID, operationID string) bool
}

// Document is the compiled contract tree.
type Document struct {
	// Servers in declaration order.
	Servers []*Server
	// Paths in deterministic (sorted-template) order.
	Paths []*Path

	matchers       []*Path
	authenticators map[string]security.Authenticator
}

// Authenticators returns the authenticator table the document was compiled
// with, for the dispatcher to build its security evaluator from.
func (d *Document) Authenticators() map[string]security.Authenticator {
	return d.authenticators
}

// Server is one compiled server entry. Only the path portion of the server
// URL participates in request matching; variables outside it resolve to
// their declared defaults.
type Server struct {
	URL     string
	DocPath string

	segments []segment
	defaults map[string]string
}

// Path is one compiled path template with its operations.
type Path struct {
	// Template is the literal path key from the document, e.g. "/pets/{id}".
	Template string
	// Operations by upper-case HTTP method.
	Operations map[string]*Operation
	DocPath    string

	segments   []segment
	paramNames []string
}

// segment is one component of a compiled template: either a literal to match
// verbatim or a named capture absorbing one raw path component.
type segment struct {
	literal string
	param   string
}

// Operation is one HTTP method under one path template, with everything
// needed to dispatch it already resolved.
type Operation struct {
	Method   string
	Template string
	DocPath  string

	// ControllerID and OperationID identify the bound handler.
	ControllerID string
	OperationID  string

	// Security alternatives; empty means always authenticated with an empty
	// identity map.
	Security      []security.Requirement
	RequiredRoles []string

	// Parameters by location, in declaration order with path-level
	// parameters merged in (operation-level wins on name+location).
	Parameters map[styles.Location][]*Parameter

	// Body is nil when the operation declares no request body.
	Body *RequestBody
}

// Parameter is one compiled parameter: a generated parser plus a generated
// validator bound to its schema.
type Parameter struct {
	Name     string
	In       styles.Location
	Required bool
	// Descriptor is the tagged styled/content union this parameter was
	// compiled from.
	Descriptor styles.Descriptor
	DocPath    string

	parse    styles.Parser
	validate Validator
}

// RequestBody holds an operation's media-type entries.
type RequestBody struct {
	Required bool
	DocPath  string
	// Entries in deterministic (sorted-pattern) order.
	Entries []*MediaTypeEntry

	registry *mediatype.Registry[*MediaTypeEntry]
}

// Select returns the media-type entry matching contentType, most specific
// pattern first.
func (b *RequestBody) Select(contentType string) (*MediaTypeEntry, bool) {
	return b.registry.Lookup(contentType)
}

// MediaTypeEntry binds one content-type pattern to its body parser and
// schema validator.
type MediaTypeEntry struct {
	Pattern  string
	DocPath  string
	Parser   BodyParser
	Validate Validator
}

// ResolvedOperation is the request-time pairing of a matched operation with
// the raw, still-unparsed values recovered from the match. It is owned by a
// single request.
type ResolvedOperation struct {
	Operation *Operation
	Path      *Path
	// RawPathParams holds undecoded path captures by parameter name.
	RawPathParams map[string]string
	// RawServerParams holds server-URL variable values, pre-resolved.
	RawServerParams map[string]string
}

// Params is the typed parameter bag extracted from one request.
type Params struct {
	Path   map[string]any
	Query  map[string]any
	Header map[string]any
	Cookie map[string]any
	Server map[string]any
}
