package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

// echoScript is a tiny stdio JSON-RPC server: it replies "ok" to
// initialize and answers every tools/call with the fixed result text
// "echo: site". Good enough to exercise mcpClient's framing and
// correlation logic without a real MCP server.
const echoScript = `
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  method=$(echo "$line" | sed -n 's/.*"method":"\([a-zA-Z/]*\)".*/\1/p')
  if [ "$method" = "initialize" ]; then
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"ok\":true}}"
  elif [ "$method" = "tools/call" ]; then
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"echo: site\"}],\"isError\":false}}"
  fi
done
`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartMCPClientHandshakeAndCallTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := startMCPClient(ctx, "sh", []string{"-c", echoScript}, []string{}, newTestLogger())
	if err != nil {
		t.Fatalf("failed to start mcp client: %v", err)
	}
	defer client.stop(context.Background())

	if !client.isAlive() {
		t.Fatal("expected client to be alive after a successful handshake")
	}

	result, err := client.callTool(ctx, "mcp__netbox__netbox_get_objects", []byte(`{"object_type":"site"}`))
	if err != nil {
		t.Fatalf("callTool failed: %v", err)
	}
	if result != "echo: site" {
		t.Fatalf("unexpected tool result: %q", result)
	}
}

func TestMCPClientStopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := startMCPClient(ctx, "sh", []string{"-c", echoScript}, []string{}, newTestLogger())
	if err != nil {
		t.Fatalf("failed to start mcp client: %v", err)
	}

	if err := client.stop(context.Background()); err != nil {
		t.Fatalf("unexpected error stopping client: %v", err)
	}
	if client.isAlive() {
		t.Fatal("expected client to report not alive after stop")
	}
	if err := client.stop(context.Background()); err != nil {
		t.Fatalf("expected second stop to be a no-op, got: %v", err)
	}
}
