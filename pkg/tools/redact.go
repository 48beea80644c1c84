package tools

import "strings"

// sensitive kwarg fragments that must never reach logs.
var sensitiveKeyFragments = []string{
	"token", "secret", "password", "api_key", "apikey", "authorization", "credential",
}

// RedactArgs returns a copy of args safe for logging. Values under sensitive
// keys are replaced; nested maps are walked.
func RedactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = "[redacted]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = RedactArgs(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
