package logging

import "strings"

const redacted = "[redacted]"

// SensitiveKeys are the field names scrubbed by default before a record is logged.
var SensitiveKeys = []string{"password", "pw", "accesstoken", "access_token", "token", "api_key", "x-emby-token"}

// Redact returns a shallow copy of fields with the given keys (case-insensitive) replaced.
// When no keys are passed, SensitiveKeys is used. The input map is never modified.
func Redact(fields map[string]any, keys ...string) map[string]any {
	if len(keys) == 0 {
		keys = SensitiveKeys
	}

	scrub := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		scrub[strings.ToLower(k)] = struct{}{}
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := scrub[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}
