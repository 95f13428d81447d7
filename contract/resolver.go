package contract

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// parseTemplate splits a path template into literal and named-capture
// segments. Captures span exactly one path component.
func parseTemplate(template string) ([]segment, []string, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, nil, fmt.Errorf("path %q must start with %q", template, "/")
	}
	var (
		segments   []segment
		paramNames []string
	)
	for _, part := range splitSegments(template) {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, nil, fmt.Errorf("path %q has an empty parameter segment", template)
			}
			for _, existing := range paramNames {
				if existing == name {
					return nil, nil, fmt.Errorf("path %q declares parameter %q twice", template, name)
				}
			}
			segments = append(segments, segment{param: name})
			paramNames = append(paramNames, name)
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, nil, fmt.Errorf("path %q mixes literals and parameters in segment %q", template, part)
		}
		segments = append(segments, segment{literal: part})
	}
	return segments, paramNames, nil
}

// splitSegments breaks a path into raw components, dropping the leading
// empty component and at most one trailing slash.
func splitSegments(path string) []string {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// match checks segs against the template. Captured values stay raw and
// undecoded.
func (p *Path) match(segs []string) (map[string]string, bool) {
	if len(segs) != len(p.segments) {
		return nil, false
	}
	var captured map[string]string
	for i, s := range p.segments {
		if s.param == "" {
			if segs[i] != s.literal {
				return nil, false
			}
			continue
		}
		if segs[i] == "" {
			return nil, false
		}
		if captured == nil {
			captured = make(map[string]string, len(p.paramNames))
		}
		captured[s.param] = segs[i]
	}
	if captured == nil {
		captured = map[string]string{}
	}
	return captured, true
}

func (p *Path) paramCount() int { return len(p.paramNames) }

// sortMatchers orders templates so that the more specific one wins when two
// could match the same path: fewer parameter segments first, longer
// templates next, with the incoming (document) order breaking remaining
// ties. It also logs overlapping template pairs.
func (d *Document) sortMatchers(o *options) {
	d.matchers = make([]*Path, len(d.Paths))
	copy(d.matchers, d.Paths)
	sort.SliceStable(d.matchers, func(i, j int) bool {
		a, b := d.matchers[i], d.matchers[j]
		if a.paramCount() != b.paramCount() {
			return a.paramCount() < b.paramCount()
		}
		return len(a.segments) > len(b.segments)
	})

	for i, a := range d.matchers {
		for _, b := range d.matchers[i+1:] {
			if templatesOverlap(a, b) {
				o.logger.Warn().
					Str("template", a.Template).
					Str("overlaps", b.Template).
					Msg("overlapping path templates; the more specific one wins")
			}
		}
	}
}

// templatesOverlap reports whether some concrete path could match both
// templates.
func templatesOverlap(a, b *Path) bool {
	if len(a.segments) != len(b.segments) {
		return false
	}
	for i := range a.segments {
		sa, sb := a.segments[i], b.segments[i]
		if sa.param == "" && sb.param == "" && sa.literal != sb.literal {
			return false
		}
	}
	return true
}

// Resolve matches a request against the compiled tree and returns the
// operation together with the raw path and server captures. The header
// argument is accepted for interface completeness; media-type negotiation
// happens later, during body parsing.
func (d *Document) Resolve(method, path string, header http.Header) (*ResolvedOperation, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	segs := splitSegments(path)
	method = strings.ToUpper(method)

	for _, srv := range d.Servers {
		serverParams, rest, ok := srv.matchPrefix(segs)
		if !ok {
			continue
		}
		for _, p := range d.matchers {
			captured, ok := p.match(rest)
			if !ok {
				continue
			}
			op, ok := p.Operations[method]
			if !ok {
				// The path template is decided by the first match; a
				// missing method on it is a miss, not a fall-through.
				return nil, false
			}
			return &ResolvedOperation{
				Operation:       op,
				Path:            p,
				RawPathParams:   captured,
				RawServerParams: serverParams,
			}, true
		}
	}
	return nil, false
}

// matchPrefix consumes the server's path segments from the front of segs,
// capturing any server variables and adding defaults for variables outside
// the path portion.
func (s *Server) matchPrefix(segs []string) (map[string]string, []string, bool) {
	if len(s.segments) > len(segs) {
		return nil, nil, false
	}
	params := make(map[string]string, len(s.segments)+len(s.defaults))
	for name, def := range s.defaults {
		params[name] = def
	}
	for i, seg := range s.segments {
		if seg.param != "" {
			params[seg.param] = segs[i]
			continue
		}
		if segs[i] != seg.literal {
			return nil, nil, false
		}
	}
	return params, segs[len(s.segments):], true
}
