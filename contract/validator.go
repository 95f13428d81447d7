package contract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/oasgate/apierr"
)

// compileValidator binds a schema fragment at docPath to a reusable
// Validator. Structural validation is delegated to kin-openapi; a format
// layer adds the numeric range checks and caller-supplied custom formats on
// top. When coerce is set, raw string values are converted to the schema's
// scalar type first, which is what parameter validation needs; body
// validation runs without coercion.
func compileValidator(ref *openapi3.SchemaRef, in, name, docPath string, formats map[string]FormatFunc, coerce bool) Validator {
	if ref == nil || ref.Value == nil {
		return func(value any) (any, []apierr.Issue) { return value, nil }
	}
	schema := ref.Value
	return func(value any) (any, []apierr.Issue) {
		if coerce {
			value = coerceToSchema(schema, value)
		}
		var issues []apierr.Issue
		if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
			issues = appendSchemaIssues(issues, err, in, name, docPath)
		}
		issues = append(issues, checkFormats(schema, value, "", in, name, docPath, formats)...)
		return value, issues
	}
}

// coerceToSchema converts raw string values produced by the style parsers
// into the scalar type the schema expects. Values that do not convert are
// returned unchanged so that schema validation reports the mismatch.
func coerceToSchema(schema *openapi3.Schema, value any) any {
	if schema == nil {
		return value
	}
	switch v := value.(type) {
	case string:
		switch schema.Type {
		case "integer":
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				// float64 represents integers exactly only up to 2^53.
				// Smaller values stay float64 so they compare equal to
				// document literals (enums, multipleOf); larger ones keep
				// their int64 precision for the format range checks.
				if i >= -(1<<53) && i <= 1<<53 {
					return float64(i)
				}
				return i
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		case "number":
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		case "boolean":
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return v
	case []any:
		if schema.Type == "array" && schema.Items != nil && schema.Items.Value != nil {
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = coerceToSchema(schema.Items.Value, item)
			}
			return out
		}
		return v
	case map[string]any:
		if schema.Type != "object" && schema.Type != "" {
			return v
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			if prop, ok := schema.Properties[k]; ok && prop.Value != nil {
				out[k] = coerceToSchema(prop.Value, item)
				continue
			}
			out[k] = item
		}
		return out
	default:
		return value
	}
}

// appendSchemaIssues flattens kin-openapi's error shapes into issues.
func appendSchemaIssues(issues []apierr.Issue, err error, in, name, docPath string) []apierr.Issue {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, sub := range e {
			issues = appendSchemaIssues(issues, sub, in, name, docPath)
		}
		return issues
	case *openapi3.SchemaError:
		message := e.Reason
		if message == "" {
			message = e.Error()
		}
		return append(issues, apierr.Issue{
			Message: message,
			Location: &apierr.Location{
				In:      in,
				Name:    name,
				DocPath: docPath,
				Path:    strings.Join(e.JSONPointer(), "/"),
			},
		})
	default:
		return append(issues, apierr.Issue{
			Message:  err.Error(),
			Location: &apierr.Location{In: in, Name: name, DocPath: docPath},
		})
	}
}

// checkFormats walks value alongside the schema and enforces the formats
// kin-openapi leaves as annotations. int32 is range-checked against
// the signed 32-bit range; int64 against the full signed 64-bit range. float, double,
// password, binary, byte, and base64 are hints and always pass. Formats in
// the caller-supplied table run instead of the built-in behavior.
func checkFormats(schema *openapi3.Schema, value any, path, in, name, docPath string, formats map[string]FormatFunc) []apierr.Issue {
	if schema == nil || value == nil {
		return nil
	}
	var issues []apierr.Issue
	at := func(message string) apierr.Issue {
		return apierr.Issue{
			Message:  message,
			Location: &apierr.Location{In: in, Name: name, DocPath: docPath, Path: path},
		}
	}
	if schema.Format != "" {
		if fn, ok := formats[schema.Format]; ok {
			if err := fn(value); err != nil {
				issues = append(issues, at(fmt.Sprintf("invalid %s: %v", schema.Format, err)))
			}
		} else {
			switch schema.Format {
			case "int32":
				if n, ok := asFloat(value); ok && (n < math.MinInt32 || n > math.MaxInt32) {
					issues = append(issues, at("value out of range for int32"))
				}
			case "int64":
				switch value.(type) {
				case int, int32, int64:
					// Native integers fit by construction.
				default:
					// float64 cannot represent MaxInt64; the nearest value at
					// or above it is 2^63, which is already out of range, so
					// the upper bound is inclusive.
					if n, ok := asFloat(value); ok && (n < math.MinInt64 || n >= math.MaxInt64) {
						issues = append(issues, at("value out of range for int64"))
					}
				}
			}
		}
	}
	switch v := value.(type) {
	case map[string]any:
		for propName, prop := range schema.Properties {
			if prop == nil || prop.Value == nil {
				continue
			}
			if pv, ok := v[propName]; ok {
				issues = append(issues, checkFormats(prop.Value, pv, joinPath(path, propName), in, name, docPath, formats)...)
			}
		}
	case []any:
		if schema.Items != nil && schema.Items.Value != nil {
			for i, item := range v {
				issues = append(issues, checkFormats(schema.Items.Value, item, joinPath(path, strconv.Itoa(i)), in, name, docPath, formats)...)
			}
		}
	}
	return issues
}

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "/" + elem
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
