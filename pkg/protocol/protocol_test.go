package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestIsOneWay(t *testing.T) {
	if !IsOneWay(TagBusEmit) {
		t.Error("BUS_EMIT must be one-way")
	}
	if !IsOneWay(TagPushInput) {
		t.Error("PUSH_INPUT must be one-way")
	}
	if IsOneWay(TagInvokeTool) {
		t.Error("INVOKE_TOOL must not be one-way")
	}
}

func TestNewOneWayPanicsOnRequestTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when constructing a one-way message with a request tag")
		}
	}()
	NewOneWay(TagInvokeTool, nil)
}

func TestTransportSendRecvRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	transport := NewTransport(&buf, &buf)

	sent := NewRequest(TagInvokeTool, "req-1", map[string]any{"name": "read_file"})
	if err := transport.Send(sent); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := transport.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if got.Tag != sent.Tag || got.ID != sent.ID {
		t.Errorf("roundtrip mismatch: sent %+v, got %+v", sent, got)
	}
}

func TestTransportRecvEOFOnClosedReader(t *testing.T) {
	r, w := io.Pipe()
	transport := NewTransport(r, io.Discard)
	w.Close()

	_, err := transport.Recv()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestTransportMultipleMessagesPreserveOrder(t *testing.T) {
	var buf bytes.Buffer
	transport := NewTransport(&buf, &buf)

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		if err := transport.Send(NewRequest(TagInvokeTool, id, nil)); err != nil {
			t.Fatalf("Send(%s) error = %v", id, err)
		}
	}

	for _, want := range ids {
		got, err := transport.Recv()
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if got.ID != want {
			t.Errorf("Recv() ID = %s, want %s", got.ID, want)
		}
	}
}
