package styles

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseContext carries per-request parse state shared by every parameter
// parser of one request: the parsed query form and the one-shot deepObject
// parse of the raw query string. A ParseContext is owned by a single request
// and must not be shared across requests.
type ParseContext struct {
	rawQuery string
	form     url.Values

	deepDone   bool
	deep       map[string]any
	deepErr    error
	deepParses int
}

// NewParseContext builds a ParseContext for one request's raw query string.
func NewParseContext(rawQuery string) *ParseContext {
	form, err := url.ParseQuery(rawQuery)
	if err != nil {
		// ParseQuery returns the pairs it could decode; keep those.
		if form == nil {
			form = url.Values{}
		}
	}
	return &ParseContext{rawQuery: rawQuery, form: form}
}

// Form returns the standard form-decoded query values.
func (pc *ParseContext) Form() url.Values { return pc.form }

// DeepObject parses the entire raw query string with nested-bracket syntax
// ("name[prop]=value") and caches the result, so repeated deepObject
// parameters never re-parse the query string.
func (pc *ParseContext) DeepObject() (map[string]any, error) {
	if !pc.deepDone {
		pc.deepDone = true
		pc.deepParses++
		pc.deep, pc.deepErr = parseDeepQuery(pc.rawQuery)
	}
	return pc.deep, pc.deepErr
}

// parseDeepQuery decodes a query string into a nested map. Keys use bracket
// syntax for nesting: "a[b][c]=v" becomes {"a": {"b": {"c": "v"}}}. Keys
// without brackets map directly to their string value; on duplicate leaves
// the last occurrence wins.
func parseDeepQuery(rawQuery string) (map[string]any, error) {
	root := make(map[string]any)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("malformed query key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("malformed query value %q: %w", rawValue, err)
		}
		path, err := splitBracketKey(key)
		if err != nil {
			return nil, err
		}
		setDeep(root, path, value)
	}
	return root, nil
}

// splitBracketKey turns "a[b][c]" into ["a","b","c"].
func splitBracketKey(key string) ([]string, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}, nil
	}
	if open == 0 {
		return nil, fmt.Errorf("malformed query key %q: missing name before %q", key, "[")
	}
	path := []string{key[:open]}
	rest := key[open:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("malformed query key %q", key)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("malformed query key %q: unbalanced brackets", key)
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path, nil
}

func setDeep(root map[string]any, path []string, value string) {
	node := root
	for i, part := range path {
		if i == len(path)-1 {
			node[part] = value
			return
		}
		next, ok := node[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[part] = next
		}
		node = next
	}
}
