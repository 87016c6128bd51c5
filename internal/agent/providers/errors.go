package providers

import (
	"fmt"
	"strings"
)

const maxAPIErrorChars = 200

// APIError represents a non-2xx provider HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func newAPIError(statusCode int, body string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Body:       sanitizeAPIError(body),
	}
}

func sanitizeAPIError(input string) string {
	scrubbed := scrubSecretPatterns(input)
	runes := []rune(scrubbed)
	if len(runes) <= maxAPIErrorChars {
		return scrubbed
	}
	return string(runes[:maxAPIErrorChars]) + "..."
}

// Sanitize strips credential-shaped substrings from a detail string
// before it is allowed to leave the component that produced it: a
// sk-ant-/sk-/xoxb-/xoxp- prefixed token, a bare 40-character hex
// token, and any /home/<user>/ path segment that could leak a local
// username. Every error that carries a detail string, anywhere in the
// gateway, is expected to pass through this before reaching a client
// or a log line.
func Sanitize(input string) string {
	return scrubSecretPatterns(scrubHomePaths(input))
}

func scrubSecretPatterns(input string) string {
	out := input
	for _, prefix := range []string{"sk-ant-", "sk-", "xoxb-", "xoxp-"} {
		for {
			idx := strings.Index(out, prefix)
			if idx < 0 {
				break
			}
			start := idx
			end := idx + len(prefix)
			for end < len(out) {
				ch := out[end]
				if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
					ch == '-' || ch == '_' || ch == '.' || ch == ':' {
					end++
					continue
				}
				break
			}
			if end == idx+len(prefix) {
				break
			}
			out = out[:start] + "[REDACTED]" + out[end:]
		}
	}
	out = scrubHexTokens(out)
	return out
}

// scrubHexTokens redacts bare 40-character lowercase-hex tokens (the
// shape of a git/API access token) that aren't already covered by a
// known prefix.
func scrubHexTokens(input string) string {
	const tokenLen = 40
	var b strings.Builder
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		if isHexRun(runes, i, tokenLen) && !isWordChar(runes, i-1) && !isWordChar(runes, i+tokenLen) {
			b.WriteString("[REDACTED]")
			i += tokenLen
			continue
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func isHexRun(runes []rune, start, length int) bool {
	if start+length > len(runes) {
		return false
	}
	for i := start; i < start+length; i++ {
		ch := runes[i]
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f')
		if !isHex {
			return false
		}
	}
	return true
}

func isWordChar(runes []rune, idx int) bool {
	if idx < 0 || idx >= len(runes) {
		return false
	}
	ch := runes[idx]
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

// scrubHomePaths rewrites /home/<user>/ path prefixes to /home/***/ so
// a local username never leaks through an error detail.
func scrubHomePaths(input string) string {
	const marker = "/home/"
	const masked = "/home/***/"
	out := input
	from := 0
	for {
		idx := strings.Index(out[from:], marker)
		if idx < 0 {
			break
		}
		idx += from
		rest := out[idx+len(marker):]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			break
		}
		out = out[:idx] + masked + rest[slash+1:]
		from = idx + len(masked)
	}
	return out
}
