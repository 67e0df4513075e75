// Package utils holds small cross-cutting helpers for log field masking.
package utils

import (
	"strings"
)

// MaxFieldSize caps how many bytes of a single log field are kept before
// being replaced with a size notice.
const MaxFieldSize = 2048

var sensitiveKeys = []string{
	"password", "token", "secret", "otp", "credential", "authorization",
	"x-api-key", "apikey", "api_key",
}

// IsSensitiveKey reports whether key names something that should never be
// logged in the clear.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskValue redacts a value if it looks sensitive or oversized. It never
// attempts to parse nested structures — headers and body bytes are logged
// as opaque strings, matching the proxy's "never interpret the payload"
// stance.
func MaskValue(key string, value string) string {
	if IsSensitiveKey(key) {
		return "******** [REDACTED]"
	}
	if len(value) > MaxFieldSize {
		return "[value too large to log]"
	}
	return value
}

// MaskHeaders returns a copy of headers with sensitive values redacted,
// keeping only the small allowlist of headers useful for debugging.
func MaskHeaders(headers map[string]string) map[string]string {
	allowed := map[string]bool{
		"content-type":     true,
		"accept":           true,
		"accept-encoding":  true,
		"accept-language":  true,
		"x-api-key":        true,
		"x-session-id":     true,
		"x-request-id":     true,
		"user-agent":       true,
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lower := strings.ToLower(k)
		if !allowed[lower] {
			continue
		}
		out[k] = MaskValue(lower, v)
	}
	return out
}
