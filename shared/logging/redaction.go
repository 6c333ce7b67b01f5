package logging

import (
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

// Redaction patterns for sensitive data in log lines.
var (
	// PasswordPattern matches password=..., password: ... and passwordAgain=...
	PasswordPattern = regexp.MustCompile(`(?i)(password\w*["']?\s*[=:]\s*["']?)([^\s"',}&]+)`)
	// BasicAuthPattern matches HTTP Basic credentials.
	BasicAuthPattern = regexp.MustCompile(`(Basic\s+)([A-Za-z0-9+/=]{4,})`)
	// BearerPattern matches bearer tokens.
	BearerPattern = regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9\-_.]{8,})`)
	// ResetTokenPattern matches reset tokens in query strings and JSON bodies.
	ResetTokenPattern = regexp.MustCompile(`(?i)(token["']?\s*[=:]\s*["']?)([A-Za-z0-9\-_]{16,})`)
	// ConnectionStringPattern matches URLs carrying credentials.
	ConnectionStringPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
	// SecretPattern matches *_SECRET and *_KEY environment assignments.
	SecretPattern = regexp.MustCompile(`(?i)([A-Z0-9_]*(?:SECRET|ACCESS_KEY|SECRET_KEY)\s*[=:]\s*)([^\s"',}]+)`)
)

// RedactString masks credentials, tokens and connection string passwords.
func RedactString(s string) string {
	if s == "" {
		return s
	}
	s = PasswordPattern.ReplaceAllString(s, "${1}"+redacted)
	s = BasicAuthPattern.ReplaceAllString(s, "${1}"+redacted)
	s = BearerPattern.ReplaceAllString(s, "${1}"+redacted)
	s = ResetTokenPattern.ReplaceAllString(s, "${1}"+redacted)
	s = ConnectionStringPattern.ReplaceAllString(s, "://"+redacted+"@")
	s = SecretPattern.ReplaceAllString(s, "${1}"+redacted)
	return s
}

var sensitiveKeys = []string{"password", "secret", "token", "credential", "authorization", "access_key"}

// RedactFields returns a copy of fields with sensitive keys fully masked and
// every other string value passed through RedactString.
func RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = RedactString(s)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
