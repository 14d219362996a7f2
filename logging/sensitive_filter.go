package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns are compiled once at package initialization.
var sensitivePatterns = []*regexp.Regexp{
	// FAL keys: "<uuid>:<32 hex>"
	regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}:[0-9a-f]{32}`),
	// Authorization header values for the FAL scheme and bearer tokens
	regexp.MustCompile(`(?i)\bKey\s+[A-Za-z0-9:._-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	// Assignments as they appear in .env dumps and error strings
	regexp.MustCompile(`(?i)fal_key\s*[:=]\s*[^\s,;]{8,}`),
	regexp.MustCompile(`(?i)(api_key|apikey|secret|token|password)\s*[:=]\s*[^\s,;]{8,}`),
}

// sensitiveFieldNames are substrings of structured field keys whose values are
// always replaced, regardless of content.
var sensitiveFieldNames = []string{
	"FAL_KEY",
	"AUTHORIZATION",
	"API_KEY",
	"APIKEY",
	"SECRET",
	"TOKEN",
	"PASSWORD",
}

// RedactSensitiveData scans a string and replaces any detected credential.
//
// Example:
//
//	RedactSensitiveData("Authorization: Key 1234abcd-...:deadbeef...")
//	// "Authorization: [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field key names a credential.
//
// Example:
//
//	IsSensitiveField("fal_key")  // true
//	IsSensitiveField("angle")    // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}

// AddSecret registers a literal secret (typically the loaded FAL_KEY) so that
// it is redacted even if it does not match a known pattern.
func AddSecret(secret string) {
	if len(secret) < 8 {
		return
	}
	sensitivePatterns = append(sensitivePatterns, regexp.MustCompile(regexp.QuoteMeta(secret)))
}
