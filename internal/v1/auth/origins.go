package auth

import "strings"

// defaultOrigins covers local frontend development when ALLOWED_ORIGINS is
// not set.
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// ParseAllowedOrigins splits a comma-separated ALLOWED_ORIGINS value into a
// list, falling back to local development defaults when empty.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultOrigins
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// IsOriginAllowed reports whether origin matches the allow list. "*" allows
// every origin and should stay confined to development setups.
func IsOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
