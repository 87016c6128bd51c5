package protocol

import (
	"encoding/json"
	"testing"
)

func TestStreamChunkEncodeRejectsUnknownType(t *testing.T) {
	_, err := StreamChunk{Type: "not_a_real_type"}.Encode()
	if err == nil {
		t.Fatal("expected encoding an unknown chunk type to fail")
	}
}

func TestStreamChunkEncodeRoundTrips(t *testing.T) {
	c := StreamChunk{Type: ChunkText, Content: "hello", Completed: true}
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var got StreamChunk
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Type != c.Type || got.Content != c.Content || got.Completed != c.Completed {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestNewErrorChunkIsTerminal(t *testing.T) {
	c := NewErrorChunk(ErrBusy)
	if c.Type != ChunkError || !c.Completed || c.Content != ErrBusy {
		t.Fatalf("unexpected error chunk shape: %+v", c)
	}
}

func TestDecodeClientFramePrompt(t *testing.T) {
	f, err := DecodeClientFrame([]byte(`{"message":"list all sites"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.Kind != FramePrompt || f.Message != "list all sites" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeClientFrameRejectsEmptyMessage(t *testing.T) {
	if _, err := DecodeClientFrame([]byte(`{"message":"   "}`)); err == nil {
		t.Fatal("expected an empty prompt message to be rejected")
	}
}

func TestDecodeClientFrameReset(t *testing.T) {
	f, err := DecodeClientFrame([]byte(`{"type":"reset"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.Kind != FrameReset {
		t.Fatalf("expected reset frame, got %+v", f)
	}
}

func TestDecodeClientFrameModelChange(t *testing.T) {
	f, err := DecodeClientFrame([]byte(`{"type":"model_change","model":"claude-opus-4"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.Kind != FrameModelChange || f.Model != "claude-opus-4" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeClientFrameModelChangeRequiresModel(t *testing.T) {
	if _, err := DecodeClientFrame([]byte(`{"type":"model_change"}`)); err == nil {
		t.Fatal("expected model_change without a model to be rejected")
	}
}

func TestDecodeClientFrameRejectsUnknownType(t *testing.T) {
	if _, err := DecodeClientFrame([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatal("expected an unrecognized frame type to be rejected")
	}
}

func TestDecodeClientFrameRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeClientFrame([]byte(`not json`)); err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
}
