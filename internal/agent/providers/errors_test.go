package providers

import (
	"strings"
	"testing"
)

func TestScrubSecretPatterns(t *testing.T) {
	in := `{"error":"bad key sk-abc123xyz and slack xoxb-foo-bar and xoxp-hello"}`
	out := scrubSecretPatterns(in)
	if strings.Contains(out, "sk-abc123xyz") || strings.Contains(out, "xoxb-foo-bar") || strings.Contains(out, "xoxp-hello") {
		t.Fatalf("expected secret-like tokens to be redacted, got: %s", out)
	}
	if strings.Count(out, "[REDACTED]") < 3 {
		t.Fatalf("expected multiple redactions, got: %s", out)
	}
}

func TestSanitizeAPIErrorTruncates(t *testing.T) {
	in := strings.Repeat("x", maxAPIErrorChars+20)
	out := sanitizeAPIError(in)
	if len([]rune(out)) <= maxAPIErrorChars {
		t.Fatalf("expected ellipsis after truncation, got len=%d", len([]rune(out)))
	}
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected ellipsis suffix, got: %s", out)
	}
}

func TestNewAPIErrorSanitizes(t *testing.T) {
	err := newAPIError(400, "token sk-secret should not leak")
	if !strings.Contains(err.Body, "[REDACTED]") {
		t.Fatalf("expected sanitized body, got: %s", err.Body)
	}
}

func TestSanitizeRedactsAnthropicKey(t *testing.T) {
	out := Sanitize("call failed with key sk-ant-api03-abcDEF123 in request")
	if strings.Contains(out, "sk-ant-api03-abcDEF123") {
		t.Fatalf("expected anthropic key to be redacted, got: %s", out)
	}
}

func TestSanitizeRedactsHexToken(t *testing.T) {
	token := strings.Repeat("a1b2c3d4e5", 4) // 40 lowercase hex chars
	out := Sanitize("auth token " + token + " rejected")
	if strings.Contains(out, token) {
		t.Fatalf("expected hex token to be redacted, got: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker, got: %s", out)
	}
}

func TestSanitizeLeavesShortHexAlone(t *testing.T) {
	out := Sanitize("commit abcdef1 looks fine")
	if !strings.Contains(out, "abcdef1") {
		t.Fatalf("did not expect a short hex run to be redacted, got: %s", out)
	}
}

func TestSanitizeRedactsHomePath(t *testing.T) {
	out := Sanitize("failed to read /home/alice/.config/tool.json")
	if strings.Contains(out, "/home/alice/") {
		t.Fatalf("expected home path to be redacted, got: %s", out)
	}
	if !strings.Contains(out, "/home/***/") {
		t.Fatalf("expected masked home path, got: %s", out)
	}
}
