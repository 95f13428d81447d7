package contract

import (
	"fmt"
	"net/http"

	"github.com/mark3labs/oasgate/apierr"
	"github.com/mark3labs/oasgate/styles"
)

// extractOrder fixes the order parameter locations are processed in, which
// is also the order their issues appear in the aggregated error list.
var extractOrder = []styles.Location{
	styles.InPath,
	styles.InQuery,
	styles.InHeader,
	styles.InCookie,
}

// ExtractParams parses and validates every declared parameter of the
// resolved operation. Issues from all locations are aggregated rather than
// short-circuited, so one response reports everything that was wrong. Server
// parameters arrive pre-resolved from the server-URL match and are copied
// through as-is.
func (op *Operation) ExtractParams(res *ResolvedOperation, req *http.Request, pc *styles.ParseContext) (Params, []apierr.Issue) {
	params := Params{
		Path:   map[string]any{},
		Query:  map[string]any{},
		Header: map[string]any{},
		Cookie: map[string]any{},
		Server: map[string]any{},
	}
	var issues []apierr.Issue

	for _, loc := range extractOrder {
		bucket := params.bucket(loc)
		for _, p := range op.Parameters[loc] {
			value, pIssues := p.extract(res, req, pc)
			if len(pIssues) > 0 {
				issues = append(issues, pIssues...)
				continue
			}
			if value != nil {
				bucket[p.Name] = value
			}
		}
	}

	for name, raw := range res.RawServerParams {
		params.Server[name] = raw
	}
	return params, issues
}

func (p Params) bucket(loc styles.Location) map[string]any {
	switch loc {
	case styles.InPath:
		return p.Path
	case styles.InQuery:
		return p.Query
	case styles.InHeader:
		return p.Header
	case styles.InCookie:
		return p.Cookie
	default:
		return p.Server
	}
}

// extract runs one parameter's parser and validator against the request.
func (p *Parameter) extract(res *ResolvedOperation, req *http.Request, pc *styles.ParseContext) (any, []apierr.Issue) {
	raw := p.rawValues(res, req, pc)

	value, err := p.parse(raw, pc)
	if err != nil {
		return nil, []apierr.Issue{{
			Message:  fmt.Sprintf("could not parse %s: %v", p.describe(), err),
			Location: p.location(),
		}}
	}
	if value == nil {
		if p.Required {
			return nil, []apierr.Issue{{
				Message:  fmt.Sprintf("missing required parameter %q in %s", p.Name, p.In),
				Location: p.location(),
			}}
		}
		return nil, nil
	}
	return p.validate(value)
}

func (p *Parameter) rawValues(res *ResolvedOperation, req *http.Request, pc *styles.ParseContext) []string {
	switch p.In {
	case styles.InPath:
		if v, ok := res.RawPathParams[p.Name]; ok {
			return []string{v}
		}
	case styles.InQuery:
		if vs, ok := pc.Form()[p.Name]; ok {
			return vs
		}
	case styles.InHeader:
		if vs := req.Header.Values(p.Name); len(vs) > 0 {
			return vs
		}
	case styles.InCookie:
		if c, err := req.Cookie(p.Name); err == nil {
			return []string{c.Value}
		}
	}
	return nil
}

func (p *Parameter) describe() string {
	if p.Descriptor.Kind == styles.KindContent {
		return fmt.Sprintf("%s parameter %q (content %s)", p.In, p.Name, p.Descriptor.Content.MediaType)
	}
	return fmt.Sprintf("%s parameter %q (style %s)", p.In, p.Name, p.Descriptor.Styled.Style)
}

func (p *Parameter) location() *apierr.Location {
	return &apierr.Location{In: string(p.In), Name: p.Name, DocPath: p.DocPath}
}
