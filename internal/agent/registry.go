package agent

import (
	"strings"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/protocol"
)

// modelEntry pairs a ModelDescriptor with the vendor handle it resolves
// to internally. The vendor handle is never echoed to clients.
type modelEntry struct {
	descriptor protocol.ModelDescriptor
	vendorID   string
}

// AutoModelID is the sentinel public id for the "auto" choice. It
// carries no vendor handle; the Transport resolves it to one fixed
// default vendor model, so no per-turn model selection takes place.
const AutoModelID = "auto"

// Registry is a compile-time table of available models plus an
// availability predicate per entry. Anthropic is the only vendor this
// gateway talks to, so the table is the Anthropic model family
// narrowed from the multi-provider table the underlying agent runtime
// once carried, plus the always-present auto sentinel.
type Registry struct {
	entries    []modelEntry
	available  func(llmAPIKeyConfigured bool) bool
	defaultID  string
	apiKeySet  bool
}

// NewRegistry builds the registry. apiKeySet reflects whether
// Config.LLMAPIKey is non-empty; every non-auto descriptor's
// availability predicate reduces to that single check — no live
// network probe is performed.
func NewRegistry(apiKeySet bool, defaultID string) *Registry {
	r := &Registry{apiKeySet: apiKeySet, defaultID: defaultID}
	r.entries = []modelEntry{
		{vendorID: "claude-opus-4-6", descriptor: protocol.ModelDescriptor{
			ID: "claude-opus-4-6", Name: "Claude Opus 4.6", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "claude-opus-4-1-20250805", descriptor: protocol.ModelDescriptor{
			ID: "claude-opus-4", Name: "Claude Opus 4", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "claude-sonnet-4-5-20250929", descriptor: protocol.ModelDescriptor{
			ID: "claude-sonnet-4", Name: "Claude Sonnet 4.5", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "claude-3-5-sonnet-20241022", descriptor: protocol.ModelDescriptor{
			ID: "claude-sonnet-3-5", Name: "Claude Sonnet 3.5", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "claude-haiku-4-5-20251001", descriptor: protocol.ModelDescriptor{
			ID: "claude-haiku-4", Name: "Claude Haiku 4.5", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "claude-3-5-haiku-20241022", descriptor: protocol.ModelDescriptor{
			ID: "claude-haiku-3-5", Name: "Claude Haiku 3.5", Provider: "anthropic", ContextLength: 200000,
		}},
		{vendorID: "", descriptor: protocol.ModelDescriptor{
			ID: AutoModelID, Name: "Auto", Provider: "anthropic", ContextLength: 200000,
		}},
	}
	if strings.TrimSpace(r.defaultID) == "" {
		r.defaultID = AutoModelID
	}
	return r
}

// Lookup resolves a public model id to its descriptor with a live
// availability value. ok is false for ids not in the table; Transport
// construction must never be attempted for such ids.
func (r *Registry) Lookup(id string) (protocol.ModelDescriptor, bool) {
	for _, e := range r.entries {
		if e.descriptor.ID == id {
			d := e.descriptor
			d.Available = r.availability(e)
			return d, true
		}
	}
	return protocol.ModelDescriptor{}, false
}

// VendorID returns the provider-specific handle backing a public id,
// or the empty string for the auto sentinel (the Transport substitutes
// its default vendor model for it).
func (r *Registry) VendorID(id string) (string, bool) {
	for _, e := range r.entries {
		if e.descriptor.ID == id {
			return e.vendorID, true
		}
	}
	return "", false
}

// List returns every descriptor with its availability evaluated now.
func (r *Registry) List() []protocol.ModelDescriptor {
	out := make([]protocol.ModelDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		d := e.descriptor
		d.Available = r.availability(e)
		out = append(out, d)
	}
	return out
}

// DefaultID returns the id new Sessions and failed switches fall back
// to.
func (r *Registry) DefaultID() string { return r.defaultID }

func (r *Registry) availability(e modelEntry) bool {
	if e.descriptor.ID == AutoModelID {
		return true
	}
	return r.apiKeySet
}
