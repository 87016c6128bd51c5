// Package protocol defines the wire shapes exchanged over the chat
// WebSocket: server-to-client StreamChunks and client-to-server
// ClientFrames, plus the REST ModelDescriptor shape. This is the single
// point where wire evolution is managed; everything above this package
// consumes typed records, never raw JSON.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Chunk types sent from server to client.
const (
	ChunkConnected     = "connected"
	ChunkText          = "text"
	ChunkToolUse       = "tool_use"
	ChunkToolResult    = "tool_result"
	ChunkThinking      = "thinking"
	ChunkError         = "error"
	ChunkResetComplete = "reset_complete"
	ChunkModelChanged  = "model_changed"
)

var validChunkTypes = map[string]struct{}{
	ChunkConnected:     {},
	ChunkText:          {},
	ChunkToolUse:       {},
	ChunkToolResult:    {},
	ChunkThinking:      {},
	ChunkError:         {},
	ChunkResetComplete: {},
	ChunkModelChanged:  {},
}

// Error kind tokens. Stable across releases; used both as log fields and
// as the content string of a terminal error chunk.
const (
	ErrBadFrame                = "bad_frame"
	ErrBusy                    = "busy"
	ErrUnknownModel            = "unknown_model"
	ErrModelUnavailable        = "model_unavailable"
	ErrToolBackendUnavailable  = "tool_backend_unavailable"
	ErrToolNotAllowed          = "tool_not_allowed"
	ErrTimeout                 = "timeout"
	ErrCancelled               = "cancelled"
	ErrSlowConsumer            = "slow_consumer"
	ErrInternal                = "internal"
)

// ChatMessage is a single turn of conversation, synthesized by the
// Session when it archives partial turns across a model switch. Never
// mutated after creation.
type ChatMessage struct {
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// StreamChunk is the tagged record sent server -> client. completed=true
// on a text chunk marks end-of-turn; on an error chunk it marks
// end-of-turn with failure. Every other type never sets completed=true.
type StreamChunk struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Completed bool           `json:"completed"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Encode serializes the chunk to compact JSON. The codec never emits an
// unrecognized type; a caller passing one gets an error instead of a
// silently wrong wire frame.
func (c StreamChunk) Encode() ([]byte, error) {
	if _, ok := validChunkTypes[c.Type]; !ok {
		return nil, fmt.Errorf("protocol: refusing to encode unknown chunk type %q", c.Type)
	}
	return json.Marshal(c)
}

// NewErrorChunk builds a terminal error chunk for the given error kind.
func NewErrorChunk(kind string) StreamChunk {
	return StreamChunk{Type: ChunkError, Content: kind, Completed: true}
}

// ClientFrameKind discriminates the decoded shape of an inbound frame.
type ClientFrameKind int

const (
	FramePrompt ClientFrameKind = iota
	FrameReset
	FrameModelChange
)

// ClientFrame is one of three shapes sent client -> server: a bare
// {"message": "..."} prompt, {"type":"reset"}, or
// {"type":"model_change","model":"..."}.
type ClientFrame struct {
	Kind    ClientFrameKind
	Message string // set when Kind == FramePrompt
	Model   string // set when Kind == FrameModelChange
}

type wireFrame struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
}

// DecodeClientFrame parses a raw inbound WebSocket text message. Unknown
// fields are tolerated (forwards compatibility); an unrecognized "type"
// or a prompt with an empty message is rejected with ErrBadFrame.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return ClientFrame{}, fmt.Errorf("%s: %w", ErrBadFrame, err)
	}

	switch strings.TrimSpace(w.Type) {
	case "":
		msg := strings.TrimSpace(w.Message)
		if msg == "" {
			return ClientFrame{}, fmt.Errorf("%s: empty message", ErrBadFrame)
		}
		return ClientFrame{Kind: FramePrompt, Message: msg}, nil
	case "reset":
		return ClientFrame{Kind: FrameReset}, nil
	case "model_change":
		model := strings.TrimSpace(w.Model)
		if model == "" {
			return ClientFrame{}, fmt.Errorf("%s: model_change missing model", ErrBadFrame)
		}
		return ClientFrame{Kind: FrameModelChange, Model: model}, nil
	default:
		return ClientFrame{}, fmt.Errorf("%s: unrecognized frame type %q", ErrBadFrame, w.Type)
	}
}

// ModelDescriptor is the REST/metadata shape for one registered model.
// Id is the stable public handle on the wire; a provider-specific handle
// may be tracked internally but is never echoed to clients.
type ModelDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Available     bool   `json:"available"`
	ContextLength int    `json:"contextLength"`
}
