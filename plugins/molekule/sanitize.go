package molekule

// cleanNulls rewrites JSON nulls to empty strings, recursively. The
// cloud API omits values by sending explicit nulls, which would
// otherwise decode to typed zero values indistinguishable from real
// payloads downstream.
func cleanNulls(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case map[string]any:
		for key, item := range v {
			v[key] = cleanNulls(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = cleanNulls(item)
		}
		return v
	default:
		return v
	}
}
