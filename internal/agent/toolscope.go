package agent

import (
	"encoding/json"
	"strings"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/agent/providers"
)

// ToolScope restricts which MCP tools the LLM is allowed to invoke, by
// name prefix. Adapted from the allow-list-of-names idiom of the
// underlying agent runtime's command policy: here the checked names are
// MCP tool names (e.g. "mcp__netbox__netbox_get_objects"), not shell
// command names, and there is no risk-level scoring — a tool either
// matches an allowed prefix or it does not.
type ToolScope struct {
	prefixes []string
}

// NewToolScope builds a ToolScope from a list of allowed name prefixes.
// An empty list allows nothing; every invocation is rejected.
func NewToolScope(prefixes []string) *ToolScope {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return &ToolScope{prefixes: clean}
}

// Allowed reports whether toolName matches one of the configured
// prefixes.
func (s *ToolScope) Allowed(toolName string) bool {
	for _, p := range s.prefixes {
		if strings.HasPrefix(toolName, p) {
			return true
		}
	}
	return false
}

// DefaultNetboxToolScope is the allow-list for the netbox MCP server's
// three read-only inventory tools.
func DefaultNetboxToolScope() *ToolScope {
	return NewToolScope([]string{
		"mcp__netbox__netbox_get_objects",
		"mcp__netbox__netbox_get_object_by_id",
		"mcp__netbox__netbox_get_changelogs",
	})
}

// NetboxToolDefinitions describes the netbox MCP server's tools to the
// LLM so it knows it may call them. Schemas are intentionally loose
// (object, additionalProperties) since the MCP server itself is the
// source of truth for argument validation.
func NetboxToolDefinitions() []providers.Tool {
	objectSchema := json.RawMessage(`{"type":"object","properties":{"object_type":{"type":"string"},"filters":{"type":"object"}},"required":["object_type"]}`)
	byIDSchema := json.RawMessage(`{"type":"object","properties":{"object_type":{"type":"string"},"id":{"type":"integer"}},"required":["object_type","id"]}`)
	changelogSchema := json.RawMessage(`{"type":"object","properties":{"object_type":{"type":"string"},"object_id":{"type":"integer"}}}`)

	return []providers.Tool{
		{
			Name:        "mcp__netbox__netbox_get_objects",
			Description: "List Netbox objects of a given type, optionally filtered.",
			InputSchema: objectSchema,
		},
		{
			Name:        "mcp__netbox__netbox_get_object_by_id",
			Description: "Fetch a single Netbox object of a given type by its numeric id.",
			InputSchema: byIDSchema,
		},
		{
			Name:        "mcp__netbox__netbox_get_changelogs",
			Description: "Fetch Netbox change log entries, optionally scoped to one object.",
			InputSchema: changelogSchema,
		},
	}
}
