// Package styles implements OpenAPI parameter deserialization. A parameter is
// described by a Descriptor, a tagged union of a styled form (simple, form,
// matrix, spaceDelimited, pipeDelimited, deepObject) or a content form (an
// explicit media type handed to a registered content parser). Descriptors are
// compiled once into Parser functions; parsing failures are ordinary errors,
// never panics.
package styles

import (
	"fmt"
	"net/url"
	"strings"
)

// Location names where a parameter is carried. Server is the pre-resolved
// fifth location holding server-URL template variables.
type Location string

const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InCookie Location = "cookie"
	InServer Location = "server"
)

// Style is an OpenAPI serialization style.
type Style string

const (
	StyleSimple         Style = "simple"
	StyleForm           Style = "form"
	StyleMatrix         Style = "matrix"
	StyleSpaceDelimited Style = "spaceDelimited"
	StylePipeDelimited  Style = "pipeDelimited"
	StyleDeepObject     Style = "deepObject"
)

// DefaultStyle returns the style OpenAPI assigns to a location when none is
// declared: simple for path and header, form for query and cookie.
func DefaultStyle(loc Location) Style {
	switch loc {
	case InQuery, InCookie:
		return StyleForm
	default:
		return StyleSimple
	}
}

// DefaultExplode returns the default explode flag for a style: true only for
// form.
func DefaultExplode(style Style) bool {
	return style == StyleForm
}

// Shape is the coarse schema shape a styled parameter deserializes into. It
// is derived from the parameter schema's type at compile time and selects
// between scalar, array, and object deserialization rules.
type Shape int

const (
	ShapePrimitive Shape = iota
	ShapeArray
	ShapeObject
)

// Kind discriminates the Descriptor union.
type Kind int

const (
	// KindStyled selects style-based deserialization.
	KindStyled Kind = iota
	// KindContent selects media-type-based deserialization.
	KindContent
)

// ContentParser turns a raw payload into a value. The dispatcher registers
// these per media type.
type ContentParser func(data []byte) (any, error)

// Styled describes a style-based parameter.
type Styled struct {
	Style   Style
	Explode bool
	Shape   Shape
}

// Content describes a media-type-based parameter.
type Content struct {
	MediaType string
	Parser    ContentParser
}

// Descriptor is the compiled description of how one parameter deserializes.
// Exactly one of Styled or Content is set, per Kind.
type Descriptor struct {
	Kind    Kind
	Styled  *Styled
	Content *Content
}

// Parser turns the raw occurrences of one parameter into a typed value.
// For query parameters raw holds the decoded values of every occurrence of
// the key; for other locations it holds a single raw string. A nil result
// with nil error means the parameter was absent.
type Parser func(raw []string, pc *ParseContext) (any, error)

// NewParser compiles the descriptor into a Parser for the given location and
// parameter name. It rejects style/location combinations OpenAPI forbids, so
// all invalid combinations surface at compile time.
func (d Descriptor) NewParser(loc Location, name string) (Parser, error) {
	switch d.Kind {
	case KindContent:
		if d.Content == nil || d.Content.Parser == nil {
			return nil, fmt.Errorf("styles: content parameter %q has no parser", name)
		}
		return newContentParser(d.Content, loc), nil
	case KindStyled:
		if d.Styled == nil {
			return nil, fmt.Errorf("styles: styled parameter %q has no style descriptor", name)
		}
		return newStyledParser(d.Styled, loc, name)
	default:
		return nil, fmt.Errorf("styles: parameter %q has unknown descriptor kind %d", name, d.Kind)
	}
}

func newStyledParser(s *Styled, loc Location, name string) (Parser, error) {
	switch s.Style {
	case StyleSimple:
		if loc != InPath && loc != InHeader && loc != InServer {
			return nil, fmt.Errorf("styles: style simple is not valid in %s", loc)
		}
		return simpleParser(s, loc, name), nil
	case StyleMatrix:
		if loc != InPath {
			return nil, fmt.Errorf("styles: style matrix is not valid in %s", loc)
		}
		return matrixParser(s, name), nil
	case StyleForm:
		if loc != InQuery && loc != InCookie {
			return nil, fmt.Errorf("styles: style form is not valid in %s", loc)
		}
		if loc == InCookie && s.Explode && s.Shape != ShapePrimitive {
			// A cookie carries a single value per name, so the exploded form
			// serialization cannot appear there. Cookie arrays and objects
			// parse as the non-exploded encoding, which is what clients send.
			ns := *s
			ns.Explode = false
			return formParser(&ns, loc, name), nil
		}
		return formParser(s, loc, name), nil
	case StyleSpaceDelimited, StylePipeDelimited:
		if loc != InQuery {
			return nil, fmt.Errorf("styles: style %s is not valid in %s", s.Style, loc)
		}
		if s.Shape != ShapeArray {
			return nil, fmt.Errorf("styles: style %s requires an array schema", s.Style)
		}
		if s.Explode {
			// Exploded spaceDelimited/pipeDelimited serializes identically
			// to exploded form, so it deserializes as form.
			return formParser(&Styled{Style: StyleForm, Explode: true, Shape: ShapeArray}, loc, name), nil
		}
		sep := " "
		if s.Style == StylePipeDelimited {
			sep = "|"
		}
		return delimitedParser(sep), nil
	case StyleDeepObject:
		if loc != InQuery {
			return nil, fmt.Errorf("styles: style deepObject is not valid in %s", loc)
		}
		if s.Shape != ShapeObject {
			return nil, fmt.Errorf("styles: style deepObject requires an object schema")
		}
		return deepObjectParser(name), nil
	default:
		return nil, fmt.Errorf("styles: unknown style %q", s.Style)
	}
}

// simpleParser handles comma-joined scalars and arrays, and key/value pairs
// for objects ("k=v,k2=v2" exploded, "k,v,k2,v2" otherwise). Path captures
// arrive percent-encoded; splitting happens on the raw text so an escaped
// comma inside one element never becomes an element boundary.
func simpleParser(s *Styled, loc Location, name string) Parser {
	decode := identityDecode
	if loc == InPath {
		decode = pathDecode
	}
	return func(raw []string, _ *ParseContext) (any, error) {
		if len(raw) == 0 {
			return nil, nil
		}
		switch s.Shape {
		case ShapeArray:
			return toAnySlice(decodeAll(strings.Split(raw[0], ","), decode)), nil
		case ShapeObject:
			return parsePairList(strings.Split(raw[0], ","), s.Explode, name, decode)
		default:
			return decode(raw[0]), nil
		}
	}
}

// matrixParser handles ";name=value" path segments. Like simpleParser it
// splits the raw capture before decoding, so escaped separators stay inside
// their element.
func matrixParser(s *Styled, name string) Parser {
	return func(raw []string, _ *ParseContext) (any, error) {
		if len(raw) == 0 {
			return nil, nil
		}
		value := raw[0]
		if !strings.HasPrefix(value, ";") {
			return nil, fmt.Errorf("malformed matrix value %q: missing %q prefix", value, ";")
		}
		segments := strings.Split(strings.TrimPrefix(value, ";"), ";")
		switch s.Shape {
		case ShapeArray:
			if !s.Explode {
				// ;name=a,b,c
				v, err := matrixValue(segments, name)
				if err != nil {
					return nil, err
				}
				return toAnySlice(decodeAll(strings.Split(v, ","), pathDecode)), nil
			}
			// ;name=a;name=b
			var items []any
			for _, seg := range segments {
				k, v, found := strings.Cut(seg, "=")
				if !found || pathDecode(k) != name {
					return nil, fmt.Errorf("malformed matrix segment %q for parameter %q", seg, name)
				}
				items = append(items, pathDecode(v))
			}
			return items, nil
		case ShapeObject:
			if s.Explode {
				// ;k=v;k2=v2
				return parsePairList(segments, true, name, pathDecode)
			}
			// ;name=k,v,k2,v2
			v, err := matrixValue(segments, name)
			if err != nil {
				return nil, err
			}
			return parsePairList(strings.Split(v, ","), false, name, pathDecode)
		default:
			v, err := matrixValue(segments, name)
			if err != nil {
				return nil, err
			}
			return pathDecode(v), nil
		}
	}
}

func matrixValue(segments []string, name string) (string, error) {
	if len(segments) != 1 {
		return "", fmt.Errorf("matrix parameter %q must serialize as a single %q segment", name, ";name=value")
	}
	k, v, found := strings.Cut(segments[0], "=")
	if !found || pathDecode(k) != name {
		return "", fmt.Errorf("malformed matrix segment %q for parameter %q", segments[0], name)
	}
	return v, nil
}

// formParser handles query and cookie values: repeated keys when exploded,
// comma-joined arrays and "k,v,k2,v2" objects otherwise. Exploded objects
// absorb the whole query string, one key per property.
func formParser(s *Styled, loc Location, name string) Parser {
	return func(raw []string, pc *ParseContext) (any, error) {
		switch s.Shape {
		case ShapeArray:
			if len(raw) == 0 {
				return nil, nil
			}
			if s.Explode {
				return toAnySlice(raw), nil
			}
			return toAnySlice(strings.Split(raw[0], ",")), nil
		case ShapeObject:
			if s.Explode {
				if loc != InQuery || pc == nil {
					return nil, fmt.Errorf("exploded form object parameter %q is only valid in query", name)
				}
				form := pc.Form()
				if len(form) == 0 {
					return nil, nil
				}
				obj := make(map[string]any, len(form))
				for k, vs := range form {
					if len(vs) > 0 {
						obj[k] = vs[0]
					}
				}
				return obj, nil
			}
			if len(raw) == 0 {
				return nil, nil
			}
			return parsePairList(strings.Split(raw[0], ","), false, name, identityDecode)
		default:
			if len(raw) == 0 {
				return nil, nil
			}
			return raw[0], nil
		}
	}
}

// delimitedParser splits the single raw occurrence on the literal separator.
func delimitedParser(sep string) Parser {
	return func(raw []string, _ *ParseContext) (any, error) {
		if len(raw) == 0 {
			return nil, nil
		}
		return toAnySlice(strings.Split(raw[0], sep)), nil
	}
}

// deepObjectParser extracts one parameter from the shared deepObject parse of
// the whole query string. The parse itself runs at most once per request.
func deepObjectParser(name string) Parser {
	return func(_ []string, pc *ParseContext) (any, error) {
		if pc == nil {
			return nil, fmt.Errorf("deepObject parameter %q requires a query parse context", name)
		}
		parsed, err := pc.DeepObject()
		if err != nil {
			return nil, err
		}
		v, ok := parsed[name]
		if !ok {
			return nil, nil
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("deepObject parameter %q must use bracket syntax, e.g. %s[prop]=value", name, name)
		}
		return obj, nil
	}
}

// newContentParser percent-decodes raw values where the location requires it
// and hands them to a registered content parser, element-wise over repeats.
func newContentParser(c *Content, loc Location) Parser {
	return func(raw []string, _ *ParseContext) (any, error) {
		if len(raw) == 0 {
			return nil, nil
		}
		decode := identityDecode
		if loc == InPath {
			decode = pathDecode
		}
		if len(raw) == 1 {
			return c.Parser([]byte(decode(raw[0])))
		}
		values := make([]any, 0, len(raw))
		for _, s := range raw {
			v, err := c.Parser([]byte(decode(s)))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}
}

// parsePairList turns "k=v" entries (exploded) or alternating "k,v" entries
// into an object. Keys and values are decoded individually, after the entry
// has been cut on its raw "=".
func parsePairList(parts []string, exploded bool, name string, decode func(string) string) (any, error) {
	obj := make(map[string]any)
	if exploded {
		for _, part := range parts {
			k, v, found := strings.Cut(part, "=")
			if !found || k == "" {
				return nil, fmt.Errorf("malformed entry %q in exploded object parameter %q", part, name)
			}
			obj[decode(k)] = decode(v)
		}
		return obj, nil
	}
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("object parameter %q needs an even number of comma-separated entries", name)
	}
	for i := 0; i < len(parts); i += 2 {
		obj[decode(parts[i])] = decode(parts[i+1])
	}
	return obj, nil
}

func identityDecode(s string) string { return s }

// pathDecode percent-decodes one raw path element, leaving it untouched when
// the escape sequence is malformed.
func pathDecode(s string) string {
	if dec, err := url.PathUnescape(s); err == nil {
		return dec
	}
	return s
}

func decodeAll(parts []string, decode func(string) string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = decode(p)
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
