package contract

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mark3labs/oasgate/mediatype"
	"github.com/mark3labs/oasgate/security"
	"github.com/mark3labs/oasgate/styles"
)

// FormatFunc validates a value against a custom schema format. Returning an
// error marks the value invalid for that format.
type FormatFunc func(value any) error

type options struct {
	authenticators             map[string]security.Authenticator
	controllers                ControllerChecker
	allowMissingControllers    bool
	allowMissingAuthenticators bool
	formats                    map[string]FormatFunc
	contentParsers             *mediatype.Registry[styles.ContentParser]
	bodyParsers                *mediatype.Registry[BodyParser]
	logger                     zerolog.Logger
}

// Option configures compilation.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		formats:        map[string]FormatFunc{},
		contentParsers: DefaultContentParsers(),
		bodyParsers:    DefaultBodyParsers(),
		logger:         zerolog.Nop(),
	}
}

// WithAuthenticators supplies the authenticator table. Compilation fails on
// any referenced security scheme without a matching entry unless
// WithAllowMissingAuthenticators is set.
func WithAuthenticators(table map[string]security.Authenticator) Option {
	return func(o *options) { o.authenticators = table }
}

// WithControllers supplies the controller table used to verify that every
// operation's handler is bound.
func WithControllers(c ControllerChecker) Option {
	return func(o *options) { o.controllers = c }
}

// WithAllowMissingControllers permits operations without a bound controller.
// Useful for validation-only tooling that never dispatches.
func WithAllowMissingControllers(allow bool) Option {
	return func(o *options) { o.allowMissingControllers = allow }
}

// WithAllowMissingAuthenticators permits security schemes without a
// registered authenticator. Useful for validation-only tooling.
func WithAllowMissingAuthenticators(allow bool) Option {
	return func(o *options) { o.allowMissingAuthenticators = allow }
}

// WithFormat registers a custom schema format. Registering a name that the
// built-in set covers overrides the built-in behavior.
func WithFormat(name string, fn FormatFunc) Option {
	return func(o *options) { o.formats[name] = fn }
}

// WithContentParsers replaces the registry used to parse content-based
// parameters. The default registry handles application/json.
func WithContentParsers(r *mediatype.Registry[styles.ContentParser]) Option {
	return func(o *options) { o.contentParsers = r }
}

// WithBodyParsers replaces the registry used to parse request bodies. The
// default registry handles application/json and text/*.
func WithBodyParsers(r *mediatype.Registry[BodyParser]) Option {
	return func(o *options) { o.bodyParsers = r }
}

// WithLogger sets the logger used for compile-time diagnostics such as
// overlapping-template warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// JSONContentParser parses a raw parameter value as JSON.
func JSONContentParser(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSONBodyParser parses a request body as JSON. An empty payload parses to
// nil so that the required-body check can report it as absent.
func JSONBodyParser(data []byte, _ http.Header) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// TextBodyParser passes a request body through as a string.
func TextBodyParser(data []byte, _ http.Header) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return string(data), nil
}

// DefaultContentParsers returns the registry content-based parameters are
// resolved against when WithContentParsers is not given.
func DefaultContentParsers() *mediatype.Registry[styles.ContentParser] {
	r := mediatype.NewRegistry[styles.ContentParser]()
	// Registration of literal patterns cannot fail.
	_ = r.Register("application/json", JSONContentParser)
	return r
}

// DefaultBodyParsers returns the registry request bodies are resolved
// against when WithBodyParsers is not given.
func DefaultBodyParsers() *mediatype.Registry[BodyParser] {
	r := mediatype.NewRegistry[BodyParser]()
	_ = r.Register("application/json", JSONBodyParser)
	_ = r.Register("text/*", TextBodyParser)
	return r
}
