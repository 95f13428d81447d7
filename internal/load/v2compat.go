package load

// rewriteV2ForConversion fixes Swagger v2 constructs the v2-to-v3 converter
// rejects, mutating the decoded document in place. Today that is operations
// carrying more than one body parameter: tools in the wild emit them even
// though v2 forbids it, and the converter errors out instead of merging. We
// merge them into a single body whose schema is an allOf of the parts,
// keeping doc order. Reports whether anything changed.
func rewriteV2ForConversion(root map[string]any) bool {
	paths, ok := root["paths"].(map[string]any)
	if !ok {
		return false
	}

	changed := false
	for _, pv := range paths {
		item, ok := pv.(map[string]any)
		if !ok {
			continue
		}
		for method, ov := range item {
			switch method {
			case "get", "put", "post", "delete", "options", "head", "patch":
			default:
				continue
			}
			op, ok := ov.(map[string]any)
			if !ok {
				continue
			}
			if mergeBodyParams(op) {
				changed = true
			}
		}
	}
	return changed
}

// mergeBodyParams collapses multiple in:body parameters on one operation into
// a single body parameter. Reports whether the operation was modified.
func mergeBodyParams(op map[string]any) bool {
	params, ok := op["parameters"].([]any)
	if !ok {
		return false
	}

	var bodies []map[string]any
	var rest []any
	for _, pv := range params {
		p, ok := pv.(map[string]any)
		if ok && asString(p["in"]) == "body" {
			bodies = append(bodies, p)
			continue
		}
		rest = append(rest, pv)
	}
	if len(bodies) < 2 {
		return false
	}

	var schemas []any
	required := false
	for _, b := range bodies {
		if s, ok := b["schema"]; ok && s != nil {
			schemas = append(schemas, s)
		}
		if r, ok := b["required"].(bool); ok && r {
			required = true
		}
	}

	merged := map[string]any{
		"name":     asString(bodies[0]["name"]),
		"in":       "body",
		"required": required,
	}
	switch len(schemas) {
	case 0:
		merged["schema"] = map[string]any{"type": "object"}
	case 1:
		merged["schema"] = schemas[0]
	default:
		merged["schema"] = map[string]any{"allOf": schemas}
	}

	op["parameters"] = append(rest, merged)
	return true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
