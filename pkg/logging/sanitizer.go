package logging

import (
	"fmt"
	"regexp"
)

const (
	// MaxCellLogLength is the maximum length of a spreadsheet cell value to log
	MaxCellLogLength = 50
	// MaxStatementLogLength is the maximum length of a SQL statement to log
	MaxStatementLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data
// Use this before logging any error from catalog or executor operations
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeStatement truncates a SQL statement for logging.
func SanitizeStatement(stmt string) string {
	sanitized := passwordPattern.ReplaceAllString(stmt, "${1}="+RedactedText)
	return TruncateString(sanitized, MaxStatementLogLength)
}

// SanitizeCellValue renders a spreadsheet cell value for logging, truncated
// so oversized cells cannot flood the logs.
func SanitizeCellValue(value any) string {
	if value == nil {
		return ""
	}
	return TruncateString(fmt.Sprintf("%v", value), MaxCellLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
