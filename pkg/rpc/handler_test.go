package rpc

import (
	"io"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/protocol"
	"github.com/cuemby/warren/pkg/types"
)

func newTestHandler(t *testing.T, w io.Writer) (*Handler, *types.SandboxedWorkerState) {
	t.Helper()
	state := types.NewSandboxedWorkerState("plugin-a", types.PluginManifest{Name: "plugin-a"}, types.DefaultWorkerRestartPolicy())
	transport := protocol.NewTransport(new(nopReader), w)
	return NewHandler("plugin-a", transport, nil, nil, state, nil, nil, nil, nil, nil), state
}

type nopReader struct{}

func (nopReader) Read(p []byte) (int, error) { return 0, io.EOF }

func TestHandleBusSubscribeAndUnsubscribe(t *testing.T) {
	h, state := newTestHandler(t, io.Discard)
	msg := protocol.Message{Tag: protocol.TagBusSubscribe, Payload: map[string]any{"eventType": "tool_result", "subscriptionId": "sub-1"}}
	if err := h.route(msg); err != nil {
		t.Fatalf("route(subscribe) error = %v", err)
	}
	state.Mu.Lock()
	_, present := state.Subscriptions["tool_result"]["sub-1"]
	state.Mu.Unlock()
	if !present {
		t.Fatal("expected subscription to be recorded")
	}

	unsub := protocol.Message{Tag: protocol.TagBusUnsubscribe, Payload: map[string]any{"eventType": "tool_result", "subscriptionId": "sub-1"}}
	if err := h.route(unsub); err != nil {
		t.Fatalf("route(unsubscribe) error = %v", err)
	}
	state.Mu.Lock()
	_, stillPresent := state.Subscriptions["tool_result"]
	state.Mu.Unlock()
	if stillPresent {
		t.Fatal("expected subscription set to be removed once empty")
	}
}

func TestHandlePushInputRejectsDisallowedType(t *testing.T) {
	h, _ := newTestHandler(t, io.Discard)
	msg := protocol.Message{Tag: protocol.TagPushInput, Payload: map[string]any{"type": "raw_shell"}}
	if err := h.route(msg); err == nil {
		t.Fatal("expected error for disallowed input type")
	}
}

func TestHandlePushInputRejectsOversizedPayload(t *testing.T) {
	h, _ := newTestHandler(t, io.Discard)
	big := make([]byte, maxInputBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	msg := protocol.Message{Tag: protocol.TagPushInput, Payload: map[string]any{"type": "user_input", "data": string(big)}}
	if err := h.route(msg); err == nil {
		t.Fatal("expected error for oversized input")
	}
}

func TestHandleSessionRequestInvalidSessionID(t *testing.T) {
	h, _ := newTestHandler(t, io.Discard)
	h.sessions = fakeSessions{}
	msg := protocol.Message{ID: "req-1", Tag: protocol.TagSessionRequest, Payload: map[string]any{"operation": "get", "sessionId": "not valid!"}}
	if err := h.route(msg); err != nil {
		t.Fatalf("route() should reply with a session error, not return one: %v", err)
	}
}

type fakeSessions struct{}

func (fakeSessions) Create(string, map[string]any) (any, error) { return nil, nil }
func (fakeSessions) Get(string) (any, error)                    { return nil, nil }
func (fakeSessions) Destroy(string) error                       { return nil }
func (fakeSessions) List() ([]any, error)                       { return nil, nil }

func TestHandlePendingReplyDiscardedAfterTimeout(t *testing.T) {
	h, state := newTestHandler(t, io.Discard)
	done := make(chan types.RPCOutcome, 1)
	pending := &types.PendingRPC{ID: "req-1", Done: done, Timer: time.NewTimer(time.Hour)}
	state.Mu.Lock()
	state.PendingRPCs["req-1"] = pending
	state.Mu.Unlock()

	// Simulate the timeout firing and removing the entry first.
	state.Mu.Lock()
	delete(state.PendingRPCs, "req-1")
	state.Mu.Unlock()

	reply := protocol.Message{Tag: protocol.TagToolResult, ReplyTo: "req-1", Payload: map[string]any{"text": "late"}}
	if err := h.route(reply); err != nil {
		t.Fatalf("expected a late reply to be silently discarded, got error: %v", err)
	}
	select {
	case <-done:
		t.Fatal("expected no delivery to Done after the pending entry was removed")
	default:
	}
}
