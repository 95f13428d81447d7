// Package security evaluates an operation's security-requirement alternatives
// against a live request. Alternatives are OR'd; the schemes inside one
// alternative are AND'd and evaluated in order. External authenticators are
// consulted at most once per scheme per request.
package security

import (
	"context"
	"net/http"
)

// Identity is the per-scheme result produced by an external authenticator.
type Identity struct {
	// Type names the kind of credential that authenticated, e.g. "basic"
	// or "bearer".
	Type string
	// User is an opaque principal owned by the request after evaluation.
	User any
	// Roles granted to the principal.
	Roles []string
	// Scopes granted to the presented credential.
	Scopes []string
}

// IdentityMap collects the identities of every scheme in the winning
// alternative, keyed by scheme name.
type IdentityMap map[string]*Identity

// SchemeScopes pairs one scheme name with the scopes it must grant.
type SchemeScopes struct {
	Name   string
	Scopes []string
}

// Requirement is one security alternative: every scheme in it must succeed.
// Scheme order is the evaluation order.
type Requirement []SchemeScopes

// Responder lets an authenticator observe and produce a response directly.
// When a response has been finalized, evaluation aborts and the dispatcher
// skips all remaining pipeline steps.
type Responder interface {
	Finalized() bool
}

// Authenticator checks a request for one scheme's credentials. A nil Identity
// with nil error means the credential was absent or not recognized; an error
// is a fault in the authenticator itself and aborts the request.
type Authenticator func(ctx context.Context, req *http.Request, rsp Responder) (*Identity, error)
