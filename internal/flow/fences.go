package flow

import "strings"

// StripCodeFences removes markdown code-fence wrapping from an LLM reply so
// the remainder can be JSON-decoded. When no fences are present but the text
// contains a JSON object, the outermost brace-delimited slice is returned.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
