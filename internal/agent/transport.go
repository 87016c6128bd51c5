package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/agent/providers"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/config"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/protocol"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/session"
)

const systemDirective = "You are a Netbox infrastructure assistant. " +
	"Help users query and understand their Netbox data. " +
	"Use the Netbox MCP tools to retrieve information. " +
	"Be concise and focus on answering the user's specific question. " +
	"When showing data, format it clearly using markdown tables or lists."

const defaultVendorModel = "claude-sonnet-4-5-20250929"

const maxToolIterationsPerTurn = 8

// Transport is the concrete Agent Transport: it owns one MCP child
// subprocess and one Anthropic Messages API conversation for its
// lifetime. It implements session.Transport.
type Transport struct {
	cfg      *config.Config
	registry *Registry
	scope    *ToolScope
	client   *providers.AnthropicClient
	logger   *slog.Logger

	mu          sync.Mutex
	mcp         *mcpClient
	messages    []providers.Message
	vendorModel string
	failed      bool
	turnCancel  context.CancelFunc
	events      chan session.TransportEvent
}

// NewTransport constructs an unopened Transport. Call Open before
// Submit.
func NewTransport(cfg *config.Config, registry *Registry, scope *ToolScope, logger *slog.Logger) *Transport {
	return &Transport{
		cfg:      cfg,
		registry: registry,
		scope:    scope,
		client:   providers.NewAnthropicClient(cfg.LLMAPIKey),
		logger:   logger,
	}
}

// Open idempotently starts the MCP subprocess and prepares the LLM
// conversation for modelID. If either step fails, no partial state
// remains: the subprocess, if started, is stopped before returning.
func (t *Transport) Open(ctx context.Context, modelID string) error {
	vendorID, ok := t.registry.VendorID(modelID)
	if !ok {
		return fmt.Errorf("unknown model id %q", modelID)
	}
	if strings.TrimSpace(vendorID) == "" {
		vendorID = defaultVendorModel // auto: let a concrete handle stand in for the sentinel
	}

	t.mu.Lock()
	alreadyOpen := t.mcp != nil
	t.mu.Unlock()
	if alreadyOpen {
		return nil
	}

	mcp, err := startMCPClient(ctx, t.cfg.ToolServerCommand, t.cfg.ToolServerArgs, t.cfg.ChildEnv(), t.logger)
	if err != nil {
		return fmt.Errorf("start mcp child: %w", err)
	}

	t.mu.Lock()
	t.mcp = mcp
	t.vendorModel = vendorID
	t.messages = nil
	t.failed = false
	t.mu.Unlock()
	return nil
}

// Submit validates no turn is in flight and kicks off one asynchronous
// turn; its events arrive on the channel returned by Events.
func (t *Transport) Submit(ctx context.Context, prompt string) error {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		return fmt.Errorf("transport is in a failed state")
	}
	if t.turnCancel != nil {
		t.mu.Unlock()
		return fmt.Errorf("a turn is already in flight")
	}

	t.messages = append(t.messages, providers.Message{
		Role:    "user",
		Content: []providers.ContentBlock{{Type: "text", Text: prompt}},
	})

	turnCtx, cancel := context.WithTimeout(context.Background(), t.cfg.TurnBudget)
	t.turnCancel = cancel
	evCh := make(chan session.TransportEvent, 32)
	t.events = evCh
	t.mu.Unlock()

	go t.runTurn(turnCtx, evCh)
	return nil
}

// Events returns the channel for the current (or most recently
// started) turn.
func (t *Transport) Events() <-chan session.TransportEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

// Cancel requests cooperative cancellation of the in-flight turn.
func (t *Transport) Cancel() {
	t.mu.Lock()
	cancel := t.turnCancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close tears down the LLM conversation and the MCP subprocess. Safe
// to call in any state and never blocks indefinitely.
func (t *Transport) Close() error {
	t.Cancel()

	t.mu.Lock()
	mcp := t.mcp
	t.mcp = nil
	t.mu.Unlock()

	if mcp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mcp.stop(ctx)
}

// turnErrorKind maps an expired turn context to the error token that
// explains why: the turn budget elapsed, or the turn was cancelled
// (reset, model switch, connection close).
func turnErrorKind(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return protocol.ErrTimeout
	}
	return protocol.ErrCancelled
}

func (t *Transport) runTurn(ctx context.Context, evCh chan session.TransportEvent) {
	defer func() {
		t.mu.Lock()
		t.turnCancel = nil
		t.mu.Unlock()
		close(evCh)
	}()

	for iteration := 0; iteration < maxToolIterationsPerTurn; iteration++ {
		if ctx.Err() != nil {
			evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: turnErrorKind(ctx)}
			return
		}

		t.mu.Lock()
		if t.mcp != nil && !t.mcp.isAlive() {
			t.failed = true
			t.mu.Unlock()
			evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: protocol.ErrToolBackendUnavailable}
			return
		}
		msgs := append([]providers.Message{}, t.messages...)
		model := t.vendorModel
		mcp := t.mcp
		t.mu.Unlock()

		req := &providers.ChatRequest{
			Model:    model,
			System:   systemDirective,
			Messages: msgs,
			Tools:    NetboxToolDefinitions(),
		}

		stream, err := t.client.Stream(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: turnErrorKind(ctx)}
				return
			}
			evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: protocol.ErrInternal, Detail: providers.Sanitize(err.Error())}
			return
		}

		var text strings.Builder
		var toolName, toolID string
		var toolArgs strings.Builder
		sawToolUse := false
		streamFailed := false

		for ev := range stream {
			if ctx.Err() != nil {
				evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: turnErrorKind(ctx)}
				return
			}
			switch ev.Kind {
			case providers.StreamTextDelta:
				text.WriteString(ev.Text)
				evCh <- session.TransportEvent{Kind: session.EventAssistantText, Text: ev.Text}
			case providers.StreamToolUseStart:
				sawToolUse = true
				toolName = ev.ToolName
				toolID = ev.ToolUseID
				toolArgs.Reset()
				evCh <- session.TransportEvent{Kind: session.EventToolUse, ToolName: toolName}
			case providers.StreamToolInputDelta:
				toolArgs.WriteString(ev.PartialArg)
			case providers.StreamError:
				streamFailed = true
				evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: protocol.ErrInternal, Detail: providers.Sanitize(ev.Err.Error())}
			case providers.StreamMessageStop:
			}
		}
		if streamFailed {
			return
		}
		if ctx.Err() != nil {
			evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: turnErrorKind(ctx)}
			return
		}

		if text.Len() > 0 {
			t.mu.Lock()
			t.messages = append(t.messages, providers.Message{
				Role: "assistant", Content: []providers.ContentBlock{{Type: "text", Text: text.String()}},
			})
			t.mu.Unlock()
		}

		if !sawToolUse {
			evCh <- session.TransportEvent{Kind: session.EventTurnComplete}
			return
		}

		if !t.scope.Allowed(toolName) {
			evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: protocol.ErrToolNotAllowed}
			return
		}

		argsJSON := json.RawMessage(toolArgs.String())
		t.mu.Lock()
		t.messages = append(t.messages, providers.Message{
			Role: "assistant",
			Content: []providers.ContentBlock{{
				Type: "tool_use", ID: toolID, Name: toolName, Input: argsJSON,
			}},
		})
		t.mu.Unlock()

		resultText, callErr := mcp.callTool(ctx, toolName, argsJSON)
		isError := callErr != nil
		if isError {
			resultText = providers.Sanitize(callErr.Error())
		}
		evCh <- session.TransportEvent{Kind: session.EventToolResult, Result: resultText}

		t.mu.Lock()
		t.messages = append(t.messages, providers.Message{
			Role: "user",
			Content: []providers.ContentBlock{{
				Type: "tool_result", ToolUseID: toolID, Content: resultText, IsError: isError,
			}},
		})
		t.mu.Unlock()
	}

	evCh <- session.TransportEvent{Kind: session.EventTurnError, ErrorKind: protocol.ErrInternal, Detail: "tool loop exceeded maximum iterations"}
}

// Factory adapts NewTransport into a session.Factory bound to this
// gateway's Config, Registry, and ToolScope.
func Factory(cfg *config.Config, registry *Registry, scope *ToolScope, logger *slog.Logger) session.Factory {
	return func(ctx context.Context, modelID string) (session.Transport, error) {
		return NewTransport(cfg, registry, scope, logger), nil
	}
}
