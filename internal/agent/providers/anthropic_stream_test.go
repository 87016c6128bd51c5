package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicClientStreamDecodesEvents(t *testing.T) {
	body := "" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","content_block":{"type":"tool_use","id":"tu_1","name":"mcp__netbox__netbox_get_objects"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"object_type\":\"site\"}"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hello "}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := NewAnthropicClientWithBaseURL("sk-ant-test", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := c.Stream(ctx, &ChatRequest{
		Model: "claude-sonnet-4",
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hi"}}},
		},
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var text string
	var sawToolUse bool
	var sawStop bool
	for ev := range events {
		switch ev.Kind {
		case StreamTextDelta:
			text += ev.Text
		case StreamToolUseStart:
			sawToolUse = true
			if ev.ToolName != "mcp__netbox__netbox_get_objects" {
				t.Fatalf("unexpected tool name: %s", ev.ToolName)
			}
		case StreamMessageStop:
			sawStop = true
		case StreamError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}

	if text != "hello world" {
		t.Fatalf("expected concatenated text deltas, got %q", text)
	}
	if !sawToolUse {
		t.Fatal("expected a tool_use start event")
	}
	if !sawStop {
		t.Fatal("expected a message_stop event")
	}
}

func TestAnthropicClientStreamPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClientWithBaseURL("sk-ant-test", srv.URL)
	_, err := c.Stream(context.Background(), &ChatRequest{
		Model:    "claude-sonnet-4",
		Messages: []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hi"}}}},
	})
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
