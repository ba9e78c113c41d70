package analysis

// canonicalize maps aliased keys onto canonical ones, coerces every
// canonical field to its type and drops keys outside the schema. An alias
// never overwrites a populated canonical value. The returned record has every
// required key.
func canonicalize(obj map[string]any, aliases map[string]string) Record {
	canonical := map[string]bool{}
	for _, k := range RequiredKeys {
		canonical[k] = true
	}

	merged := map[string]any{}
	for _, k := range RequiredKeys {
		if v, ok := obj[k]; ok {
			merged[k] = v
		}
	}
	for key, val := range obj {
		if canonical[key] {
			continue
		}
		target, ok := aliases[key]
		if !ok {
			if snake := toSnake(key); canonical[snake] {
				target, ok = snake, true
			}
		}
		if !ok || !canonical[target] {
			continue
		}
		if cur, exists := merged[target]; exists && !isEmpty(target, coerceField(target, cur)) {
			continue
		}
		merged[target] = val
	}

	out := Record{}
	for _, k := range RequiredKeys {
		out[k] = coerceField(k, merged[k])
	}
	return out
}

func coerceField(key string, v any) any {
	switch {
	case key == KeySummary:
		return coerceSummary(v)
	case key == KeyOverallAssessment:
		return coerceAssessment(v)
	case sequenceKeys[key]:
		return coerceSequence(v)
	default:
		return v
	}
}

// mergeMissing copies fields from patch into r only where r's value is empty.
// It returns the keys it filled.
func mergeMissing(r, patch Record) []string {
	var filled []string
	for _, k := range RequiredKeys {
		if !isEmpty(k, r[k]) || isEmpty(k, patch[k]) {
			continue
		}
		r[k] = patch[k]
		filled = append(filled, k)
	}
	return filled
}
