// Package mediatype provides an ordered MIME-pattern registry. Values are
// registered under "type/subtype", "type/*", or "*/*" patterns and looked up
// by concrete content type, most specific pattern first. The dispatcher uses
// it to select body parsers and the compiler to select parameter content
// parsers.
package mediatype

import (
	"fmt"
	"mime"
	"strings"
)

// Registry maps MIME patterns to values of type T.
//
// Registration happens at compile time; a populated Registry is immutable
// thereafter and safe for concurrent Lookup calls.
type Registry[T any] struct {
	exact    map[string]T
	subtypes map[string]T
	wildcard *T
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		exact:    make(map[string]T),
		subtypes: make(map[string]T),
	}
}

// Register stores v under pattern. Valid patterns are "type/subtype",
// "type/*", and "*/*". Registering the same pattern twice is an error.
func (r *Registry[T]) Register(pattern string, v T) error {
	typ, sub, err := splitPattern(pattern)
	if err != nil {
		return err
	}
	switch {
	case typ == "*":
		if r.wildcard != nil {
			return fmt.Errorf("mediatype: duplicate registration for %q", "*/*")
		}
		r.wildcard = &v
	case sub == "*":
		if _, dup := r.subtypes[typ]; dup {
			return fmt.Errorf("mediatype: duplicate registration for %q", typ+"/*")
		}
		r.subtypes[typ] = v
	default:
		key := typ + "/" + sub
		if _, dup := r.exact[key]; dup {
			return fmt.Errorf("mediatype: duplicate registration for %q", key)
		}
		r.exact[key] = v
	}
	return nil
}

// Lookup strips any parameters from contentType (e.g. "; charset=utf-8") and
// returns the most specific registered value: exact match, then "type/*",
// then "*/*". Matching is case-insensitive.
func (r *Registry[T]) Lookup(contentType string) (T, bool) {
	var zero T
	typ, sub, err := splitPattern(contentType)
	if err != nil {
		return zero, false
	}
	if v, ok := r.exact[typ+"/"+sub]; ok {
		return v, true
	}
	if v, ok := r.subtypes[typ]; ok {
		return v, true
	}
	if r.wildcard != nil {
		return *r.wildcard, true
	}
	return zero, false
}

// Len reports how many patterns are registered.
func (r *Registry[T]) Len() int {
	n := len(r.exact) + len(r.subtypes)
	if r.wildcard != nil {
		n++
	}
	return n
}

// splitPattern normalizes a media type or pattern into lowercase type and
// subtype, dropping parameters. Wildcards are handled before delegating to
// mime.ParseMediaType, which rejects "*" tokens in some positions.
func splitPattern(s string) (typ, sub string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("mediatype: empty media type")
	}
	base := s
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if strings.Contains(base, "*") {
		parts := strings.Split(base, "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("mediatype: malformed media type %q", s)
		}
		typ = strings.ToLower(strings.TrimSpace(parts[0]))
		sub = strings.ToLower(strings.TrimSpace(parts[1]))
		if typ == "*" && sub != "*" {
			// */subtype is not a valid pattern
			return "", "", fmt.Errorf("mediatype: malformed media type %q", s)
		}
		if typ == "" || sub == "" {
			return "", "", fmt.Errorf("mediatype: malformed media type %q", s)
		}
		return typ, sub, nil
	}
	parsed, _, perr := mime.ParseMediaType(s)
	if perr != nil {
		return "", "", fmt.Errorf("mediatype: malformed media type %q: %w", s, perr)
	}
	parts := strings.Split(parsed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("mediatype: malformed media type %q", s)
	}
	return parts[0], parts[1], nil
}
