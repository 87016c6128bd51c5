// Package session implements the per-connection chat session state
// machine: idle, awaiting-turn, switching-model, resetting, closing. A
// Session pairs exactly one Agent Transport with one WebSocket
// connection and translates transport events into wire StreamChunks.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/protocol"
)

// State is one of the five session states from the state machine.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingTurn    State = "awaiting-turn"
	StateSwitchingModel  State = "switching-model"
	StateResetting       State = "resetting"
	StateClosing         State = "closing"
)

// TransportEventKind discriminates the tagged union emitted by a
// Transport for the duration of one turn.
type TransportEventKind int

const (
	EventAssistantText TransportEventKind = iota
	EventToolUse
	EventToolResult
	EventThinking
	EventTurnComplete
	EventTurnError
)

// TransportEvent is one item from a Transport's event stream.
type TransportEvent struct {
	Kind      TransportEventKind
	Text      string // AssistantText, Thinking
	ToolName  string // ToolUse
	Result    string // ToolResult
	ErrorKind string // TurnError - one of the protocol.Err* tokens
	Detail    string // TurnError - sanitized detail
}

func (e TransportEvent) terminal() bool {
	return e.Kind == EventTurnComplete || e.Kind == EventTurnError
}

// Transport is the capability set a Session drives: open, submit,
// events, cancel, close. Concrete implementations (an in-process
// Anthropic+MCP transport, or a test stub) live outside this package;
// this interface exists so session has no import on the agent package.
type Transport interface {
	Open(ctx context.Context, modelID string) error
	Submit(ctx context.Context, prompt string) error
	Events() <-chan TransportEvent
	Cancel()
	Close() error
}

// Factory constructs a fresh Transport bound to modelID. Called on
// Session creation and on every successful model switch.
type Factory func(ctx context.Context, modelID string) (Transport, error)

// ModelLookup resolves a public model id to its descriptor, mirroring
// the Model Registry's lookup contract.
type ModelLookup func(id string) (protocol.ModelDescriptor, bool)

// Session is the per-WebSocket state machine. All exported methods are
// safe for concurrent use, though the gateway is expected to call them
// serially per connection (inbound frames are processed one at a time).
type Session struct {
	mu sync.Mutex

	connectionID   string
	currentModelID string
	transport      Transport
	newTransport   Factory

	state          State
	processingTurn bool
	activeTurnID   uint64
	turnSeq        uint64
	partialText    strings.Builder

	archived     []protocol.ChatMessage
	lastActivity time.Time
}

// New creates a Session bound to connectionID and opens its initial
// Transport against defaultModelID. Returns an error if the Transport
// cannot be opened; no Session is returned in that case.
func New(ctx context.Context, connectionID, defaultModelID string, factory Factory) (*Session, error) {
	t, err := factory(ctx, defaultModelID)
	if err != nil {
		return nil, fmt.Errorf("construct transport: %w", err)
	}
	if err := t.Open(ctx, defaultModelID); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return &Session{
		connectionID:   connectionID,
		currentModelID: defaultModelID,
		transport:      t,
		newTransport:   factory,
		state:          StateIdle,
		lastActivity:   time.Now(),
	}, nil
}

// ConnectionID returns the session's owning connection id.
func (s *Session) ConnectionID() string { return s.connectionID }

// CurrentModelID returns the id of the model currently bound.
func (s *Session) CurrentModelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentModelID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transport returns the currently bound transport, for the gateway's
// event pump to read from. The caller tags events read from it with
// the turn id returned by Prompt and passes them to HandleEvent, which
// discards events whose turn id is stale.
func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Prompt starts a new turn if the Session is idle. On success it
// returns the turn id the caller must tag subsequent HandleEvent calls
// with. If the Session is not idle, busy is non-nil and must be sent to
// the client verbatim; no turn was started.
func (s *Session) Prompt(ctx context.Context, message string) (turnID uint64, busy *protocol.StreamChunk, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		c := protocol.NewErrorChunk(protocol.ErrBusy)
		return 0, &c, nil
	}

	s.turnSeq++
	turnID = s.turnSeq
	s.activeTurnID = turnID
	s.state = StateAwaitingTurn
	s.processingTurn = true
	s.partialText.Reset()
	s.lastActivity = time.Now()

	if err := s.transport.Submit(ctx, message); err != nil {
		s.state = StateIdle
		s.processingTurn = false
		s.activeTurnID = 0
		return 0, nil, err
	}
	return turnID, nil, nil
}

// Reset handles a client reset frame. If the Session is idle it
// completes synchronously (ready=true) with a reset_complete chunk. If
// a turn is in flight, it cancels the Transport and returns
// ready=false; the eventual reset_complete is produced by HandleEvent
// once the Transport acknowledges cancellation.
func (s *Session) Reset() (chunk protocol.StreamChunk, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAwaitingTurn:
		s.state = StateResetting
		s.transport.Cancel()
		return protocol.StreamChunk{}, false
	default:
		return protocol.StreamChunk{Type: protocol.ChunkResetComplete, Content: "ok"}, true
	}
}

// ModelChange archives any partial turn, tears down the current
// Transport, constructs and opens a fresh one bound to modelID, and
// returns the model_changed (or rejection) chunk. Model change is
// accepted from any state.
func (s *Session) ModelChange(ctx context.Context, modelID string, lookup ModelLookup) (protocol.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor, ok := lookup(modelID)
	if !ok {
		return protocol.NewErrorChunk(protocol.ErrUnknownModel), nil
	}
	if !descriptor.Available {
		return protocol.NewErrorChunk(protocol.ErrModelUnavailable), nil
	}

	previous := s.currentModelID

	var archivedNow []protocol.ChatMessage
	if s.processingTurn {
		if text := s.partialText.String(); text != "" {
			archivedNow = append(archivedNow, protocol.ChatMessage{
				Role: "assistant", Content: text, Timestamp: time.Now().UnixMilli(),
			})
		}
		s.transport.Cancel()
	}
	// Invalidate whatever turn was in flight; its late events, if any,
	// will fail the turn-id check in HandleEvent and be dropped.
	s.activeTurnID = 0
	s.processingTurn = false
	s.partialText.Reset()

	if s.transport != nil {
		_ = s.transport.Close()
	}

	next, err := s.newTransport(ctx, modelID)
	if err != nil {
		s.state = StateIdle
		return protocol.NewErrorChunk(protocol.ErrToolBackendUnavailable), err
	}
	if err := next.Open(ctx, modelID); err != nil {
		s.state = StateIdle
		return protocol.NewErrorChunk(protocol.ErrToolBackendUnavailable), err
	}

	s.transport = next
	s.currentModelID = modelID
	s.state = StateIdle
	s.lastActivity = time.Now()
	s.archived = append(s.archived, archivedNow...)

	return protocol.StreamChunk{
		Type:    protocol.ChunkModelChanged,
		Content: fmt.Sprintf("switched to %s", modelID),
		Metadata: map[string]any{
			"model": map[string]any{
				"id":     descriptor.ID,
				"name":   descriptor.Name,
				"isAuto": descriptor.ID == "auto",
			},
			"previous":           previous,
			"archived_messages":  archivedNow,
		},
	}, nil
}

// HandleEvent translates one Transport event into a chunk. It returns
// emit=false when the event should not reach the client: either it was
// tagged with a stale turn id (superseded by reset or model switch), or
// it is a non-terminal event arriving after a reset was requested.
func (s *Session) HandleEvent(turnID uint64, ev TransportEvent) (chunk protocol.StreamChunk, emit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turnID == 0 || turnID != s.activeTurnID {
		return protocol.StreamChunk{}, false
	}

	if s.state == StateResetting {
		if !ev.terminal() {
			return protocol.StreamChunk{}, false
		}
		s.state = StateIdle
		s.processingTurn = false
		s.activeTurnID = 0
		s.partialText.Reset()
		return protocol.StreamChunk{Type: protocol.ChunkResetComplete, Content: "ok"}, true
	}

	if s.state != StateAwaitingTurn {
		return protocol.StreamChunk{}, false
	}

	switch ev.Kind {
	case EventAssistantText:
		s.partialText.WriteString(ev.Text)
		s.lastActivity = time.Now()
		return protocol.StreamChunk{Type: protocol.ChunkText, Content: ev.Text, Completed: false}, true
	case EventToolUse:
		return protocol.StreamChunk{Type: protocol.ChunkToolUse, Content: ev.ToolName}, true
	case EventToolResult:
		return protocol.StreamChunk{Type: protocol.ChunkToolResult, Content: ev.Result}, true
	case EventThinking:
		return protocol.StreamChunk{Type: protocol.ChunkThinking, Content: ev.Text}, true
	case EventTurnComplete:
		s.state = StateIdle
		s.processingTurn = false
		s.activeTurnID = 0
		s.partialText.Reset()
		return protocol.StreamChunk{Type: protocol.ChunkText, Content: "", Completed: true}, true
	case EventTurnError:
		s.state = StateIdle
		s.processingTurn = false
		s.activeTurnID = 0
		s.partialText.Reset()
		return protocol.NewErrorChunk(ev.ErrorKind), true
	default:
		return protocol.StreamChunk{}, false
	}
}

// Close tears down the Session's Transport. Safe to call more than
// once; subsequent calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing {
		return nil
	}
	s.state = StateClosing
	if s.transport == nil {
		return nil
	}
	t := s.transport
	s.transport = nil
	return t.Close()
}

// Manager tracks all live Sessions, keyed by connection id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers a Session under its connection id.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ConnectionID()] = s
}

// Get returns the Session for a connection id, if any.
func (m *Manager) Get(connectionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connectionID]
	return s, ok
}

// Remove closes and drops the Session for a connection id.
func (m *Manager) Remove(connectionID string) {
	m.mu.Lock()
	s, ok := m.sessions[connectionID]
	delete(m.sessions, connectionID)
	m.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// Count returns the number of live Sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
