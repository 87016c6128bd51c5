package config

import (
	"os"
	"strings"
	"testing"
)

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		envLLMAPIKey, envToolCommand, envToolArgs, envToolEnvAllowlist,
		envToolBaseURL, envToolAuthToken, envAllowedOrigins, envDefaultModelID,
		envTurnBudget, envLogLevel, envListenAddr,
	}
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv(envLLMAPIKey, "sk-ant-test")
	os.Setenv(envToolCommand, "netbox-mcp")
	os.Setenv(envToolBaseURL, "https://netbox.example.com")
	os.Setenv(envToolAuthToken, "token123")
	os.Setenv(envAllowedOrigins, "https://chat.example.com")
}

func TestLoadReportsEveryMissingKeyAtOnce(t *testing.T) {
	clearGatewayEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("expected missing required env vars to fail")
	}
	for _, key := range []string{envLLMAPIKey, envToolCommand, envToolBaseURL, envToolAuthToken, envAllowedOrigins} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to name %s, got: %s", key, err.Error())
		}
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultModelID != "auto" {
		t.Errorf("expected default model id auto, got %s", cfg.DefaultModelID)
	}
	if cfg.TurnBudget != defaultTurnBudget {
		t.Errorf("expected default turn budget, got %s", cfg.TurnBudget)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("expected default listen addr, got %s", cfg.ListenAddr)
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	os.Setenv(envLogLevel, "verbose")

	if _, err := Load(); err == nil {
		t.Fatal("expected an invalid log level to be rejected")
	}
}

func TestToolServerArgsSplitsOnComma(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	os.Setenv(envToolArgs, "--stdio,--verbose,--site=default")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"--stdio", "--verbose", "--site=default"}
	if len(cfg.ToolServerArgs) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.ToolServerArgs)
	}
	for i, arg := range want {
		if cfg.ToolServerArgs[i] != arg {
			t.Fatalf("expected %v, got %v", want, cfg.ToolServerArgs)
		}
	}
}

func TestChildEnvOnlyIncludesAllowlistedKeys(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	os.Setenv(envToolEnvAllowlist, "TOOL_BASE_URL,TOOL_AUTH_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := cfg.ChildEnv()
	if len(env) != 2 {
		t.Fatalf("expected exactly 2 child env entries, got %d: %v", len(env), env)
	}
	joined := strings.Join(env, " ")
	if !strings.Contains(joined, "TOOL_BASE_URL=https://netbox.example.com") {
		t.Errorf("expected TOOL_BASE_URL in child env, got: %v", env)
	}
	if !strings.Contains(joined, "TOOL_AUTH_TOKEN=token123") {
		t.Errorf("expected TOOL_AUTH_TOKEN in child env, got: %v", env)
	}
	if strings.Contains(joined, "LOG_LEVEL") {
		t.Errorf("expected LOG_LEVEL to be excluded when not allowlisted, got: %v", env)
	}
}

func TestChildEnvNeverLeaksAPIKey(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	os.Setenv(envToolEnvAllowlist, "LLM_API_KEY,TOOL_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kv := range cfg.ChildEnv() {
		if strings.HasPrefix(kv, "LLM_API_KEY=") {
			t.Fatalf("LLM_API_KEY must never reach the child environment, got: %v", cfg.ChildEnv())
		}
	}
}

func TestStringMasksSecrets(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := cfg.String()
	if strings.Contains(s, "sk-ant-test") || strings.Contains(s, "token123") {
		t.Fatalf("expected secrets to be masked in String(), got: %s", s)
	}
}
