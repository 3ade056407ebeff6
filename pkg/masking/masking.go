// Package masking redacts credential-looking substrings from text before it
// leaves the engine. Error strings are the main surface: SDK and store
// errors routinely embed bearer tokens or connection strings, and they are
// re-emitted verbatim on the public event stream.
package masking

import (
	"regexp"
)

// Replacement is substituted for every credential match.
const Replacement = "***REDACTED***"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the well-known credential shapes. Compiled once at
// package init; an invalid builtin is a programming error, hence MustCompile.
var builtinPatterns = []*CompiledPattern{
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + Replacement,
	},
	{
		Name:        "connection_string_key",
		Regex:       regexp.MustCompile(`(?i)\b(password|pwd|passwd|secret|accountkey|sharedaccesskey|sig|api[_-]?key|token)=[^;\s&"']+`),
		Replacement: "$1=" + Replacement,
	},
	{
		Name:        "url_userinfo",
		Regex:       regexp.MustCompile(`(://[^/\s:@]+):[^/\s@]+@`),
		Replacement: "$1:" + Replacement + "@",
	},
	{
		Name:        "authorization_header",
		Regex:       regexp.MustCompile(`(?i)\b(authorization:\s*)\S+(\s+\S+)?`),
		Replacement: "$1" + Replacement,
	},
	{
		Name:        "api_key_assignment",
		Regex:       regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|client[_-]?secret)("?\s*[:=]\s*"?)[A-Za-z0-9\-._~+/]{8,}`),
		Replacement: "$1$2" + Replacement,
	},
}

// Service applies credential redaction. Created once at startup; stateless
// aside from compiled patterns, safe for concurrent use.
type Service struct {
	patterns []*CompiledPattern
}

// NewService creates a redaction service with the built-in pattern set.
func NewService() *Service {
	return &Service{patterns: builtinPatterns}
}

// Redact replaces every credential-looking substring in s.
func (s *Service) Redact(text string) string {
	if text == "" {
		return text
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// RedactError is a nil-safe convenience for error values.
func (s *Service) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return s.Redact(err.Error())
}
