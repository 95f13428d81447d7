package contract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/oasgate/mediatype"
	"github.com/mark3labs/oasgate/security"
	"github.com/mark3labs/oasgate/styles"
)

// Extension keys recognized during compilation. Controller bindings may be
// declared on the document, a path item, or an operation; the most specific
// wins.
const (
	ExtController  = "x-oasgate-controller"
	ExtOperationID = "x-oasgate-operationid"
	ExtRoles       = "x-oasgate-roles"
)

// Compile walks the dereferenced document and builds the contract tree. It
// fails fast: any malformed or unbindable definition aborts compilation with
// an error naming the offending document location, and no partial tree is
// ever returned.
func Compile(doc *openapi3.T, opts ...Option) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("contract: document is nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	d := &Document{authenticators: o.authenticators}

	if err := compileServers(d, doc); err != nil {
		return nil, err
	}

	// Sorted path keys keep compilation deterministic regardless of map
	// iteration order.
	pathKeys := make([]string, 0, len(doc.Paths))
	for key := range doc.Paths {
		pathKeys = append(pathKeys, key)
	}
	sort.Strings(pathKeys)

	for _, key := range pathKeys {
		if strings.HasPrefix(key, "x-") {
			// Specification extensions are not routes.
			continue
		}
		item := doc.Paths[key]
		if item == nil {
			continue
		}
		p, err := compilePath(doc, key, item, o)
		if err != nil {
			return nil, err
		}
		if len(p.Operations) == 0 {
			continue
		}
		d.Paths = append(d.Paths, p)
	}

	d.sortMatchers(o)
	o.logger.Debug().
		Int("paths", len(d.Paths)).
		Int("servers", len(d.Servers)).
		Msg("contract compiled")
	return d, nil
}

func compileServers(d *Document, doc *openapi3.T) error {
	for i, s := range doc.Servers {
		docPath := fmt.Sprintf("/servers/%d", i)
		srv, err := compileServer(s, docPath)
		if err != nil {
			return err
		}
		d.Servers = append(d.Servers, srv)
	}
	if len(d.Servers) == 0 {
		// The implicit default server "/".
		d.Servers = append(d.Servers, &Server{URL: "/", DocPath: "/servers"})
	}
	// Longer server prefixes match first; document order breaks ties.
	sort.SliceStable(d.Servers, func(i, j int) bool {
		return len(d.Servers[i].segments) > len(d.Servers[j].segments)
	})
	return nil
}

func compileServer(s *openapi3.Server, docPath string) (*Server, error) {
	if s == nil || s.URL == "" {
		return nil, fmt.Errorf("contract: server at %s has no URL", docPath)
	}
	prefix, pathPart := splitServerURL(s.URL)
	srv := &Server{URL: s.URL, DocPath: docPath, defaults: map[string]string{}}

	// Variables outside the path portion cannot be recovered from the
	// request path; they resolve to their declared defaults.
	for _, name := range templateVars(prefix) {
		v, ok := s.Variables[name]
		if !ok {
			return nil, fmt.Errorf("contract: server at %s references undeclared variable %q", docPath, name)
		}
		srv.defaults[name] = v.Default
	}

	if pathPart != "" && pathPart != "/" {
		segments, paramNames, err := parseTemplate(pathPart)
		if err != nil {
			return nil, fmt.Errorf("contract: server at %s: %w", docPath, err)
		}
		for _, name := range paramNames {
			if _, ok := s.Variables[name]; !ok {
				return nil, fmt.Errorf("contract: server at %s references undeclared variable %q", docPath, name)
			}
		}
		srv.segments = segments
	}
	return srv, nil
}

// splitServerURL separates a server URL into the non-path prefix and the
// path portion. Relative server URLs are all path.
func splitServerURL(raw string) (prefix, pathPart string) {
	if strings.HasPrefix(raw, "/") {
		return "", raw
	}
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:len(raw)-len(rest)+j], rest[j:]
		}
		return raw, ""
	}
	return raw, ""
}

func templateVars(s string) []string {
	var names []string
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			return names
		}
		names = append(names, s[open+1:open+end])
		s = s[open+end+1:]
	}
}

func compilePath(doc *openapi3.T, key string, item *openapi3.PathItem, o *options) (*Path, error) {
	docPath := "/paths/" + escapePointer(key)
	segments, paramNames, err := parseTemplate(key)
	if err != nil {
		return nil, fmt.Errorf("contract: %w (at %s)", err, docPath)
	}
	p := &Path{
		Template:   key,
		DocPath:    docPath,
		Operations: map[string]*Operation{},
		segments:   segments,
		paramNames: paramNames,
	}

	for _, pair := range operationsOf(item) {
		if pair.op == nil {
			continue
		}
		compiled, err := compileOperation(doc, item, key, pair.method, pair.op, o)
		if err != nil {
			return nil, err
		}
		p.Operations[pair.method] = compiled
	}
	return p, nil
}

type methodOperation struct {
	method string
	op     *openapi3.Operation
}

// operationsOf lists the path item's operations in a stable order.
func operationsOf(item *openapi3.PathItem) []methodOperation {
	return []methodOperation{
		{"GET", item.Get},
		{"POST", item.Post},
		{"PUT", item.Put},
		{"DELETE", item.Delete},
		{"PATCH", item.Patch},
		{"HEAD", item.Head},
		{"OPTIONS", item.Options},
		{"TRACE", item.Trace},
	}
}

func compileOperation(doc *openapi3.T, item *openapi3.PathItem, key, method string, op *openapi3.Operation, o *options) (*Operation, error) {
	docPath := "/paths/" + escapePointer(key) + "/" + strings.ToLower(method)

	compiled := &Operation{
		Method:   method,
		Template: key,
		DocPath:  docPath,
	}

	// Layered controller resolution, fully decided at compile time.
	compiled.ControllerID = firstNonEmpty(
		extString(op.Extensions, ExtController),
		extString(item.Extensions, ExtController),
		extString(doc.Extensions, ExtController),
	)
	compiled.OperationID = firstNonEmpty(
		extString(op.Extensions, ExtOperationID),
		op.OperationID,
	)
	if compiled.ControllerID == "" || compiled.OperationID == "" {
		if !o.allowMissingControllers {
			return nil, fmt.Errorf("contract: operation at %s has no controller binding (need %s and an operation id)", docPath, ExtController)
		}
	} else if o.controllers != nil && !o.controllers.HasController(compiled.ControllerID, compiled.OperationID) {
		if !o.allowMissingControllers {
			return nil, fmt.Errorf("contract: operation at %s is bound to unknown controller %s#%s", docPath, compiled.ControllerID, compiled.OperationID)
		}
	}

	alternatives, explicitEmpty, err := compileSecurity(doc, op, docPath, o)
	if err != nil {
		return nil, err
	}
	compiled.Security = alternatives

	compiled.RequiredRoles = extStrings(op.Extensions, ExtRoles)
	if compiled.RequiredRoles == nil {
		compiled.RequiredRoles = extStrings(doc.Extensions, ExtRoles)
	}
	if len(compiled.RequiredRoles) > 0 && len(alternatives) == 0 && !explicitEmpty {
		return nil, fmt.Errorf("contract: operation at %s requires roles %v but has no security requirements; declare security explicitly (security: []) to opt out", docPath, compiled.RequiredRoles)
	}

	params, err := compileParameters(item, op, "/paths/"+escapePointer(key), docPath, o)
	if err != nil {
		return nil, err
	}
	compiled.Parameters = params

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body, err := compileRequestBody(op.RequestBody.Value, docPath+"/requestBody", o)
		if err != nil {
			return nil, err
		}
		compiled.Body = body
	}
	return compiled, nil
}

func compileSecurity(doc *openapi3.T, op *openapi3.Operation, docPath string, o *options) ([]security.Requirement, bool, error) {
	var src openapi3.SecurityRequirements
	explicitEmpty := false
	if op.Security != nil {
		src = *op.Security
		explicitEmpty = len(src) == 0
	} else {
		src = doc.Security
	}

	alternatives := make([]security.Requirement, 0, len(src))
	for _, raw := range src {
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		// The YAML mapping loses declaration order; sorted names keep the
		// intra-alternative evaluation order deterministic.
		sort.Strings(names)

		alt := make(security.Requirement, 0, len(names))
		for _, name := range names {
			if _, ok := o.authenticators[name]; !ok && !o.allowMissingAuthenticators {
				return nil, false, fmt.Errorf("contract: operation at %s references security scheme %q with no registered authenticator", docPath, name)
			}
			alt = append(alt, security.SchemeScopes{Name: name, Scopes: raw[name]})
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives, explicitEmpty, nil
}

// compileParameters merges path-level parameters with operation-level ones.
// An operation-level parameter replaces an inherited one with the same name
// and location, in place; new parameters append in declaration order.
func compileParameters(item *openapi3.PathItem, op *openapi3.Operation, pathDocPath, opDocPath string, o *options) (map[styles.Location][]*Parameter, error) {
	type indexed struct {
		ref     *openapi3.ParameterRef
		docPath string
	}
	var merged []indexed
	position := map[string]int{}

	add := func(refs openapi3.Parameters, base string) {
		for i, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			entry := indexed{ref: ref, docPath: fmt.Sprintf("%s/%d", base, i)}
			key := ref.Value.In + " " + ref.Value.Name
			if at, ok := position[key]; ok {
				merged[at] = entry
				continue
			}
			position[key] = len(merged)
			merged = append(merged, entry)
		}
	}
	add(item.Parameters, pathDocPath+"/parameters")
	add(op.Parameters, opDocPath+"/parameters")

	params := map[styles.Location][]*Parameter{}
	for _, entry := range merged {
		p, err := compileParameter(entry.ref.Value, entry.docPath, o)
		if err != nil {
			return nil, err
		}
		params[p.In] = append(params[p.In], p)
	}
	return params, nil
}

func compileParameter(p *openapi3.Parameter, docPath string, o *options) (*Parameter, error) {
	loc := styles.Location(p.In)
	switch loc {
	case styles.InPath, styles.InQuery, styles.InHeader, styles.InCookie:
	default:
		return nil, fmt.Errorf("contract: parameter %q at %s has invalid location %q", p.Name, docPath, p.In)
	}

	hasSchema := p.Schema != nil && p.Schema.Value != nil
	hasContent := len(p.Content) > 0
	if hasSchema == hasContent {
		return nil, fmt.Errorf("contract: parameter %q at %s must declare exactly one of schema or content", p.Name, docPath)
	}

	param := &Parameter{
		Name:     p.Name,
		In:       loc,
		Required: p.Required,
		DocPath:  docPath,
	}

	var schemaRef *openapi3.SchemaRef
	if hasContent {
		if len(p.Content) != 1 {
			return nil, fmt.Errorf("contract: parameter %q at %s declares %d content media types; exactly one is allowed", p.Name, docPath, len(p.Content))
		}
		var mt string
		var media *openapi3.MediaType
		for key, value := range p.Content {
			mt, media = key, value
		}
		parser, ok := o.contentParsers.Lookup(mt)
		if !ok {
			return nil, fmt.Errorf("contract: parameter %q at %s declares content %q with no registered parser", p.Name, docPath, mt)
		}
		param.Descriptor = styles.Descriptor{
			Kind:    styles.KindContent,
			Content: &styles.Content{MediaType: mt, Parser: parser},
		}
		if media != nil {
			schemaRef = media.Schema
		}
	} else {
		style := styles.Style(p.Style)
		if p.Style == "" {
			style = styles.DefaultStyle(loc)
		}
		explode := styles.DefaultExplode(style)
		if p.Explode != nil {
			explode = *p.Explode
		}
		param.Descriptor = styles.Descriptor{
			Kind: styles.KindStyled,
			Styled: &styles.Styled{
				Style:   style,
				Explode: explode,
				Shape:   shapeOf(p.Schema.Value),
			},
		}
		schemaRef = p.Schema
	}

	parse, err := param.Descriptor.NewParser(loc, p.Name)
	if err != nil {
		return nil, fmt.Errorf("contract: parameter %q at %s: %w", p.Name, docPath, err)
	}
	param.parse = parse
	// Content parameters arrive typed from their parser; only styled
	// parameters need string coercion.
	param.validate = compileValidator(schemaRef, string(loc), p.Name, docPath+"/schema", o.formats, !hasContent)
	return param, nil
}

func shapeOf(schema *openapi3.Schema) styles.Shape {
	switch schema.Type {
	case "array":
		return styles.ShapeArray
	case "object":
		return styles.ShapeObject
	default:
		return styles.ShapePrimitive
	}
}

func compileRequestBody(body *openapi3.RequestBody, docPath string, o *options) (*RequestBody, error) {
	compiled := &RequestBody{
		Required: body.Required,
		DocPath:  docPath,
	}
	registry := mediatype.NewRegistry[*MediaTypeEntry]()
	patterns := make([]string, 0, len(body.Content))
	for pattern := range body.Content {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		media := body.Content[pattern]
		entryDocPath := docPath + "/content/" + escapePointer(pattern)
		parser, ok := o.bodyParsers.Lookup(pattern)
		if !ok {
			return nil, fmt.Errorf("contract: request body at %s declares media type %q with no registered body parser", docPath, pattern)
		}
		var schemaRef *openapi3.SchemaRef
		if media != nil {
			schemaRef = media.Schema
		}
		entry := &MediaTypeEntry{
			Pattern:  pattern,
			DocPath:  entryDocPath,
			Parser:   parser,
			Validate: compileValidator(schemaRef, "body", "", entryDocPath+"/schema", o.formats, false),
		}
		if err := registry.Register(pattern, entry); err != nil {
			return nil, fmt.Errorf("contract: request body at %s: %w", docPath, err)
		}
		compiled.Entries = append(compiled.Entries, entry)
	}
	compiled.registry = registry
	return compiled, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// escapePointer applies JSON-pointer escaping to one path component.
func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

// extString reads a string-valued specification extension. kin-openapi keeps
// extension values as raw JSON.
func extString(exts map[string]any, key string) string {
	v, ok := exts[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s
		}
	}
	return ""
}

// extStrings reads a string-array-valued specification extension.
func extStrings(exts map[string]any, key string) []string {
	v, ok := exts[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case json.RawMessage:
		var out []string
		if err := json.Unmarshal(t, &out); err == nil {
			return out
		}
	}
	return nil
}
