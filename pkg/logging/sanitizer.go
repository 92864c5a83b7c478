package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Matches password values in connection strings: password=xxx, pwd=xxx
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// Columns whose values must never reach log output. User rows carry hashed
// credentials; hashed or not, they stay out of logs.
var sensitiveColumns = map[string]bool{
	"password": true,
}

// SanitizeConnectionString removes credentials from a connection string
// before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might echo connection details.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// RedactColumns returns a copy of a column/value map with credential-bearing
// columns replaced. Storage operations log records through this.
func RedactColumns(record map[string]any) map[string]any {
	redacted := make(map[string]any, len(record))
	for col, v := range record {
		if sensitiveColumns[col] {
			redacted[col] = RedactedText
			continue
		}
		redacted[col] = v
	}
	return redacted
}
