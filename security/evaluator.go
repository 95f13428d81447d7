package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mark3labs/oasgate/apierr"
)

// Evaluator holds the authenticator table and evaluates requirements against
// requests. It is built once and is safe for concurrent use; all per-request
// state lives inside Evaluate.
type Evaluator struct {
	authenticators map[string]Authenticator
	logger         zerolog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for per-evaluation tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator builds an Evaluator over the given authenticator table.
func NewEvaluator(authenticators map[string]Authenticator, opts ...Option) *Evaluator {
	e := &Evaluator{
		authenticators: authenticators,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the security state machine for one request.
//
// Zero alternatives means the operation is open: the result is an empty,
// non-nil IdentityMap. Otherwise the first alternative whose schemes all
// succeed wins and its per-scheme identities are merged. If none succeeds,
// the error is an *apierr.AuthError: 403 with the collected reasons when some
// credential authenticated but lacked scopes or roles, 401 listing the
// accepted scheme combinations when no credential was presented at all.
//
// If rsp reports a finalized response at any point, evaluation stops and
// returns (nil, nil); the dispatcher treats the request as answered.
func (e *Evaluator) Evaluate(ctx context.Context, alternatives []Requirement, requiredRoles []string, req *http.Request, rsp Responder) (IdentityMap, error) {
	if len(alternatives) == 0 {
		return IdentityMap{}, nil
	}

	// Memoizes authenticator outcomes so each scheme runs at most once per
	// request, no matter how many alternatives reference it.
	tried := make(map[string]*Identity)
	var reasons []string

	for _, alt := range alternatives {
		identities := make(IdentityMap, len(alt))
		satisfied := true

		for _, ss := range alt {
			if rsp != nil && rsp.Finalized() {
				return nil, nil
			}
			identity, err := e.authenticate(ctx, tried, ss.Name, req, rsp)
			if err != nil {
				return nil, fmt.Errorf("security: authenticator %q: %w", ss.Name, err)
			}
			if identity == nil {
				satisfied = false
				break
			}
			if missing := missingFrom(ss.Scopes, identity.Scopes); len(missing) > 0 {
				reasons = append(reasons, fmt.Sprintf(
					"Authenticated using '%s' but missing required scopes: %s",
					ss.Name, strings.Join(missing, ", ")))
				satisfied = false
				break
			}
			if missing := missingFrom(requiredRoles, identity.Roles); len(missing) > 0 {
				reasons = append(reasons, fmt.Sprintf(
					"Authenticated using '%s' but missing required roles: %s",
					ss.Name, strings.Join(missing, ", ")))
				satisfied = false
				break
			}
			identities[ss.Name] = identity
		}

		if satisfied {
			e.logger.Debug().Str("schemes", renderAlternative(alt)).Msg("security requirement satisfied")
			return identities, nil
		}
	}

	if len(reasons) > 0 {
		return nil, &apierr.AuthError{
			Status:  http.StatusForbidden,
			Message: "not authorized",
			Reasons: reasons,
		}
	}
	return nil, &apierr.AuthError{
		Status: http.StatusUnauthorized,
		Message: fmt.Sprintf("authentication required; authenticate using %s",
			renderAlternatives(alternatives)),
	}
}

func (e *Evaluator) authenticate(ctx context.Context, tried map[string]*Identity, name string, req *http.Request, rsp Responder) (*Identity, error) {
	if identity, seen := tried[name]; seen {
		return identity, nil
	}
	a, ok := e.authenticators[name]
	if !ok {
		// Compilation rejects unknown schemes; reaching this is a wiring bug.
		return nil, fmt.Errorf("no authenticator registered")
	}
	identity, err := a(ctx, req, rsp)
	if err != nil {
		return nil, err
	}
	tried[name] = identity
	return identity, nil
}

// missingFrom returns the required entries absent from granted.
func missingFrom(required, granted []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		have[g] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// renderAlternative formats one alternative: "scheme" when it has a single
// scheme, "(a + b)" otherwise.
func renderAlternative(alt Requirement) string {
	if len(alt) == 1 {
		return alt[0].Name
	}
	names := make([]string, len(alt))
	for i, ss := range alt {
		names[i] = ss.Name
	}
	return "(" + strings.Join(names, " + ") + ")"
}

func renderAlternatives(alternatives []Requirement) string {
	parts := make([]string, len(alternatives))
	for i, alt := range alternatives {
		parts[i] = renderAlternative(alt)
	}
	return strings.Join(parts, ", ")
}
