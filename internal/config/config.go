// Package config loads the gateway's configuration entirely from
// process environment variables. There is no config file: every
// setting is a recognized env var, validated fail-fast and all at
// once so a misconfigured deployment reports every missing key in one
// error rather than one-at-a-time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is an immutable snapshot of the process environment's
// recognized settings, taken once at startup.
type Config struct {
	LLMAPIKey string

	ToolServerCommand     string
	ToolServerArgs        []string
	ToolServerEnvAllowlist []string
	ToolBaseURL           string
	ToolAuthToken         string

	AllowedOrigins []string

	DefaultModelID string
	TurnBudget     time.Duration
	LogLevel       string
	ListenAddr     string

	ServiceName    string
	ServiceVersion string
}

const (
	envLLMAPIKey       = "LLM_API_KEY"
	envToolCommand      = "TOOL_SERVER_COMMAND"
	envToolArgs         = "TOOL_SERVER_ARGS"
	envToolEnvAllowlist = "TOOL_SERVER_ENV_ALLOWLIST"
	envToolBaseURL      = "TOOL_BASE_URL"
	envToolAuthToken    = "TOOL_AUTH_TOKEN"
	envAllowedOrigins   = "ALLOWED_ORIGINS"
	envDefaultModelID   = "DEFAULT_MODEL_ID"
	envTurnBudget       = "TURN_BUDGET_SECONDS"
	envLogLevel         = "LOG_LEVEL"
	envListenAddr       = "GATEWAY_ADDR"
)

const (
	defaultModelID    = "auto"
	defaultTurnBudget = 3 * time.Minute
	defaultLogLevel   = "info"
	defaultListenAddr = "127.0.0.1:8787"
)

// Load reads and validates Config from the current process
// environment. Every missing required key is collected and named in a
// single error rather than failing on the first one found.
func Load() (*Config, error) {
	var missing []string

	cfg := &Config{
		ServiceName:    "netbox-chat-gateway",
		ServiceVersion: "0.1.0",
	}

	cfg.LLMAPIKey = strings.TrimSpace(os.Getenv(envLLMAPIKey))
	if cfg.LLMAPIKey == "" {
		missing = append(missing, envLLMAPIKey)
	}

	cfg.ToolServerCommand = strings.TrimSpace(os.Getenv(envToolCommand))
	if cfg.ToolServerCommand == "" {
		missing = append(missing, envToolCommand)
	}
	cfg.ToolServerArgs = splitNonEmpty(os.Getenv(envToolArgs), ",")
	cfg.ToolServerEnvAllowlist = splitNonEmpty(os.Getenv(envToolEnvAllowlist), ",")

	cfg.ToolBaseURL = strings.TrimSpace(os.Getenv(envToolBaseURL))
	if cfg.ToolBaseURL == "" {
		missing = append(missing, envToolBaseURL)
	}
	cfg.ToolAuthToken = strings.TrimSpace(os.Getenv(envToolAuthToken))
	if cfg.ToolAuthToken == "" {
		missing = append(missing, envToolAuthToken)
	}

	cfg.AllowedOrigins = splitNonEmpty(os.Getenv(envAllowedOrigins), ",")
	if len(cfg.AllowedOrigins) == 0 {
		missing = append(missing, envAllowedOrigins)
	}

	cfg.DefaultModelID = strings.TrimSpace(os.Getenv(envDefaultModelID))
	if cfg.DefaultModelID == "" {
		cfg.DefaultModelID = defaultModelID
	}

	cfg.TurnBudget = defaultTurnBudget
	if v := strings.TrimSpace(os.Getenv(envTurnBudget)); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			missing = append(missing, envTurnBudget+" (must be a positive integer number of seconds)")
		} else {
			cfg.TurnBudget = time.Duration(secs) * time.Second
		}
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv(envLogLevel)))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if !validLogLevel(cfg.LogLevel) {
		missing = append(missing, envLogLevel+" (must be one of debug, info, warn, error)")
	}

	cfg.ListenAddr = strings.TrimSpace(os.Getenv(envListenAddr))
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing or invalid required configuration: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func splitNonEmpty(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ChildEnv builds the exact environment map the MCP subprocess should
// receive: only the allowlisted keys, sourced from Config, never from
// the gateway's own inherited environment. This is the regression
// guard for the defect where an ambient shell variable shadowed a
// configured token.
func (c *Config) ChildEnv() []string {
	available := map[string]string{
		"TOOL_BASE_URL":   c.ToolBaseURL,
		"TOOL_AUTH_TOKEN": c.ToolAuthToken,
		"LOG_LEVEL":       c.LogLevel,
	}
	env := make([]string, 0, len(c.ToolServerEnvAllowlist))
	for _, key := range c.ToolServerEnvAllowlist {
		if v, ok := available[key]; ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// String renders a log-safe representation: secrets are masked, never
// printed in full.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config(llm_api_key=%s, tool_server_command=%s, tool_base_url=%s, tool_auth_token=%s, "+
			"allowed_origins=%v, default_model_id=%s, turn_budget=%s, log_level=%s, listen_addr=%s)",
		mask(c.LLMAPIKey), c.ToolServerCommand, c.ToolBaseURL, mask(c.ToolAuthToken),
		c.AllowedOrigins, c.DefaultModelID, c.TurnBudget, c.LogLevel, c.ListenAddr,
	)
}

func mask(v string) string {
	if v == "" {
		return "NOT SET"
	}
	return "***"
}
