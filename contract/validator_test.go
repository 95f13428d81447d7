package contract

import (
	"fmt"
	"math"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaRef(t *testing.T, yml string) *openapi3.SchemaRef {
	t.Helper()
	var schema openapi3.Schema
	require.NoError(t, schema.UnmarshalJSON([]byte(yml)))
	return openapi3.NewSchemaRef("", &schema)
}

func TestValidator_NilSchemaPasses(t *testing.T) {
	v := compileValidator(nil, "query", "q", "/x", nil, true)
	out, issues := v("anything")
	assert.Empty(t, issues)
	assert.Equal(t, "anything", out)
}

func TestValidator_CoercesStyledStrings(t *testing.T) {
	ref := schemaRef(t, `{"type":"integer"}`)
	v := compileValidator(ref, "query", "limit", "/x", nil, true)

	out, issues := v("42")
	require.Empty(t, issues)
	assert.Equal(t, float64(42), out)

	_, issues = v("nope")
	require.NotEmpty(t, issues, "unconvertible value fails schema validation")
}

func TestValidator_StringSchemaAcceptsNumericLookalike(t *testing.T) {
	ref := schemaRef(t, `{"type":"string"}`)
	v := compileValidator(ref, "query", "q", "/x", nil, true)

	out, issues := v("7")
	assert.Empty(t, issues, "string schema keeps the raw string, digits and all")
	assert.Equal(t, "7", out)
}

func TestValidator_BodyIsNeverCoerced(t *testing.T) {
	ref := schemaRef(t, `{"type":"integer"}`)
	v := compileValidator(ref, "body", "", "/x", nil, false)

	_, issues := v("42")
	assert.NotEmpty(t, issues, "a JSON string is not an integer")
}

func TestValidator_ObjectIssuesCarryPointer(t *testing.T) {
	ref := schemaRef(t, `{"type":"object","properties":{"age":{"type":"integer"}},"required":["age"]}`)
	v := compileValidator(ref, "body", "", "/doc/schema", nil, false)

	_, issues := v(map[string]any{"age": "old"})
	require.NotEmpty(t, issues)
	loc := issues[0].Location
	require.NotNil(t, loc)
	assert.Equal(t, "body", loc.In)
	assert.Equal(t, "/doc/schema", loc.DocPath)
	assert.Contains(t, loc.Path, "age")
}

func TestValidator_Int32Range(t *testing.T) {
	ref := schemaRef(t, `{"type":"integer","format":"int32"}`)
	v := compileValidator(ref, "query", "n", "/x", nil, true)

	_, issues := v("2147483647")
	assert.Empty(t, issues)

	_, issues = v("2147483648")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "out of range for int32")
}

func TestValidator_Int64FullRange(t *testing.T) {
	ref := schemaRef(t, `{"type":"integer","format":"int64"}`)
	v := compileValidator(ref, "query", "n", "/x", nil, true)

	// Beyond the float64 exact-integer ceiling, still a valid int64.
	_, issues := v("9007199254740993")
	assert.Empty(t, issues)

	// MaxInt64 survives coercion without float rounding.
	_, issues = v("9223372036854775807")
	assert.Empty(t, issues)

	// 2^63 is the first value past the int64 range.
	_, issues = v(math.Ldexp(1, 63))
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "out of range for int64")
}

func TestValidator_IntegerEnumMatchesCoercedValue(t *testing.T) {
	ref := schemaRef(t, `{"type":"integer","enum":[1,2,3]}`)
	v := compileValidator(ref, "query", "n", "/x", nil, true)

	_, issues := v("2")
	assert.Empty(t, issues)

	_, issues = v("4")
	assert.NotEmpty(t, issues)
}

func TestValidator_CustomFormat(t *testing.T) {
	ref := schemaRef(t, `{"type":"string","format":"hex"}`)
	formats := map[string]FormatFunc{
		"hex": func(value any) error {
			s, ok := value.(string)
			if !ok {
				return nil
			}
			for _, r := range s {
				if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
					return fmt.Errorf("bad digit %q", r)
				}
			}
			return nil
		},
	}
	v := compileValidator(ref, "query", "color", "/x", formats, true)

	_, issues := v("c0ffee")
	assert.Empty(t, issues)

	_, issues = v("zz")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "invalid hex")
}

func TestValidator_NestedFormatWalk(t *testing.T) {
	ref := schemaRef(t, `{"type":"array","items":{"type":"integer","format":"int32"}}`)
	v := compileValidator(ref, "query", "ids", "/x", nil, true)

	_, issues := v([]any{"1", "99999999999"})
	require.Len(t, issues, 1)
	assert.Equal(t, "1", issues[0].Location.Path, "issue path points at the offending element")
}

func TestCoerceToSchema(t *testing.T) {
	obj := schemaRef(t, `{"type":"object","properties":{"n":{"type":"number"},"ok":{"type":"boolean"},"s":{"type":"string"}}}`).Value

	out := coerceToSchema(obj, map[string]any{"n": "1.5", "ok": "true", "s": "x", "extra": "y"})
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.5, m["n"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "x", m["s"])
	assert.Equal(t, "y", m["extra"], "unknown properties pass through untouched")
}
