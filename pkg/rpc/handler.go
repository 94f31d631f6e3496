package rpc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/audit"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/protocol"
	"github.com/cuemby/warren/pkg/types"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const maxInputBytes = 100 * 1024 // 100 KiB (spec §4.4)

var allowedInputTypes = map[string]bool{
	"user_input":     true,
	"slash_command":  true,
}

// SessionManager services SESSION_REQUEST operations on behalf of a worker.
type SessionManager interface {
	Create(pluginName string, args map[string]any) (any, error)
	Get(sessionID string) (any, error)
	Destroy(sessionID string) error
	List() ([]any, error)
}

// InputQueue receives PUSH_INPUT events forwarded from a worker.
type InputQueue interface {
	PushInput(inputType string, payload map[string]any) error
}

// ToolRegistry serves TOOLS_LIST_REQUEST/TOOLS_GET_REQUEST.
type ToolRegistry interface {
	ListTools(pluginName string) []types.ToolDescriptor
	GetTool(pluginName, id string) (types.ToolDescriptor, bool)
}

// GuideRegistry serves GUIDES_LIST_REQUEST/GUIDES_GET_REQUEST. GetSystemPrompt
// may be slow (spec §4.4: "calling getSystemPrompt on the host side, which
// may be async"); the worker only ever sees the resolved content.
type GuideRegistry interface {
	ListGuides() []types.GuideDescriptor
	GetSystemPrompt(id string) (string, error)
}

// ProviderRegistry serves PROVIDERS_LIST_REQUEST. The Handler has no route
// for PROVIDERS_GET_REQUEST; that tag is rejected as unrecognized. The
// streaming chat surface is intentionally absent — providers stay
// host-resident (spec §4.4).
type ProviderRegistry interface {
	ListProviders() []types.ProviderDescriptor
}

// Handler owns the worker message listener for one sandboxed plugin (C6).
type Handler struct {
	pluginName string
	transport  *protocol.Transport
	broker     *events.Broker
	auditLog   *audit.Logger

	sessions  SessionManager
	input     InputQueue
	tools     ToolRegistry
	guides    GuideRegistry
	providers ProviderRegistry

	state *types.SandboxedWorkerState
}

// NewHandler wires a Handler to one worker's transport and its tracking
// state. Any of sessions/input/tools/guides/providers may be nil if the
// sandbox manager has not wired that surface for this plugin. Session and
// input requests against a nil collaborator return a typed error; tool,
// guide and provider requests against a nil collaborator are answered with
// empty results.
func NewHandler(
	pluginName string,
	transport *protocol.Transport,
	broker *events.Broker,
	auditLog *audit.Logger,
	state *types.SandboxedWorkerState,
	sessions SessionManager,
	input InputQueue,
	tools ToolRegistry,
	guides GuideRegistry,
	providers ProviderRegistry,
) *Handler {
	return &Handler{
		pluginName: pluginName,
		transport:  transport,
		broker:     broker,
		auditLog:   auditLog,
		state:      state,
		sessions:   sessions,
		input:      input,
		tools:      tools,
		guides:     guides,
		providers:  providers,
	}
}

// Serve reads worker-originated messages until the transport is closed or a
// fatal error is hit. It is meant to run in its own goroutine, one per live
// worker.
func (h *Handler) Serve() error {
	for {
		msg, err := h.transport.Recv()
		if err != nil {
			return err
		}
		h.dispatch(msg)
	}
}

func (h *Handler) dispatch(msg protocol.Message) {
	start := time.Now()
	operation := string(msg.Tag)
	if h.auditLog != nil {
		h.auditLog.RPCStart(operation, operation, msg.Payload)
	}

	err := h.route(msg)

	if h.auditLog != nil {
		h.auditLog.RPCEnd(operation, operation, time.Since(start), err)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.WithPlugin(h.pluginName).Warn().Err(err).Str("tag", operation).Msg("rpc dispatch failed")
	}
	metrics.RPCRequestsTotal.WithLabelValues(operation, outcome).Inc()
	metrics.RPCRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *Handler) route(msg protocol.Message) error {
	switch msg.Tag {
	case protocol.TagBusEmit:
		return h.handleBusEmit(msg)
	case protocol.TagBusSubscribe:
		return h.handleBusSubscribe(msg)
	case protocol.TagBusUnsubscribe:
		return h.handleBusUnsubscribe(msg)
	case protocol.TagPushInput:
		return h.handlePushInput(msg)
	case protocol.TagSessionRequest:
		return h.handleSessionRequest(msg)
	case protocol.TagToolsListRequest:
		return h.handleToolsList(msg)
	case protocol.TagToolsGetRequest:
		return h.handleToolsGet(msg)
	case protocol.TagGuidesListRequest:
		return h.handleGuidesList(msg)
	case protocol.TagGuidesGetRequest:
		return h.handleGuidesGet(msg)
	case protocol.TagProvidersListReq:
		return h.handleProvidersList(msg)
	case protocol.TagHeartbeat:
		return h.handleHeartbeat(msg)
	case protocol.TagToolResult, protocol.TagInitComplete, protocol.TagResetComplete:
		return h.handlePendingReply(msg)
	default:
		return hosterrors.New(hosterrors.KindProtocol, h.pluginName, "route",
			fmt.Errorf("unrecognized message tag %q", msg.Tag))
	}
}

func (h *Handler) handleBusEmit(msg protocol.Message) error {
	eventType, _ := msg.Payload["eventType"].(string)
	if eventType == "" {
		return hosterrors.New(hosterrors.KindProtocol, h.pluginName, "BUS_EMIT",
			fmt.Errorf("missing eventType"))
	}
	if h.broker != nil {
		h.broker.Publish(&events.Event{
			Type:       events.EventType(eventType),
			PluginName: h.pluginName,
			Payload:    msg.Payload["payload"],
		})
	}
	return nil
}

func (h *Handler) handleBusSubscribe(msg protocol.Message) error {
	eventType, _ := msg.Payload["eventType"].(string)
	subID, _ := msg.Payload["subscriptionId"].(string)
	if eventType == "" || subID == "" {
		return hosterrors.New(hosterrors.KindProtocol, h.pluginName, "BUS_SUBSCRIBE",
			fmt.Errorf("missing eventType or subscriptionId"))
	}
	h.state.Mu.Lock()
	defer h.state.Mu.Unlock()
	set, ok := h.state.Subscriptions[eventType]
	if !ok {
		set = make(map[string]struct{})
		h.state.Subscriptions[eventType] = set
	}
	set[subID] = struct{}{}
	return nil
}

func (h *Handler) handleBusUnsubscribe(msg protocol.Message) error {
	eventType, _ := msg.Payload["eventType"].(string)
	subID, _ := msg.Payload["subscriptionId"].(string)
	h.state.Mu.Lock()
	defer h.state.Mu.Unlock()
	if set, ok := h.state.Subscriptions[eventType]; ok {
		delete(set, subID)
		if len(set) == 0 {
			delete(h.state.Subscriptions, eventType)
		}
	}
	return nil
}

func (h *Handler) handlePushInput(msg protocol.Message) error {
	inputType, _ := msg.Payload["type"].(string)
	if !allowedInputTypes[inputType] {
		return hosterrors.New(hosterrors.KindInvocation, h.pluginName, "PUSH_INPUT",
			fmt.Errorf("input type %q is not in the allowed set", inputType))
	}
	encoded, err := json.Marshal(msg.Payload)
	if err != nil {
		return hosterrors.New(hosterrors.KindInvocation, h.pluginName, "PUSH_INPUT", err)
	}
	if len(encoded) > maxInputBytes {
		return hosterrors.New(hosterrors.KindInvocation, h.pluginName, "PUSH_INPUT",
			fmt.Errorf("serialized input exceeds %d bytes", maxInputBytes))
	}
	if h.input == nil {
		return hosterrors.New(hosterrors.KindInvocation, h.pluginName, "PUSH_INPUT",
			fmt.Errorf("no input queue wired for this plugin"))
	}
	return h.input.PushInput(inputType, msg.Payload)
}

func (h *Handler) handleSessionRequest(msg protocol.Message) error {
	if h.sessions == nil {
		return hosterrors.New(hosterrors.KindInvocation, h.pluginName, "SESSION_REQUEST",
			fmt.Errorf("no session manager wired for this plugin"))
	}
	op, _ := msg.Payload["operation"].(string)
	var result any
	var err error

	switch op {
	case "create":
		result, err = h.sessions.Create(h.pluginName, msg.Payload)
	case "get":
		sessionID, _ := msg.Payload["sessionId"].(string)
		if !sessionIDPattern.MatchString(sessionID) {
			return h.replySessionError(msg, "invalid session id format")
		}
		result, err = h.sessions.Get(sessionID)
	case "destroy":
		sessionID, _ := msg.Payload["sessionId"].(string)
		if !sessionIDPattern.MatchString(sessionID) {
			return h.replySessionError(msg, "invalid session id format")
		}
		err = h.sessions.Destroy(sessionID)
	case "list":
		result, err = h.sessions.List()
	default:
		return h.replySessionError(msg, fmt.Sprintf("unknown session operation %q", op))
	}

	if err != nil {
		return h.replySessionError(msg, err.Error())
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagSessionResponse, msg.ID, map[string]any{
		"success": true,
		"data":    result,
	}))
}

func (h *Handler) replySessionError(msg protocol.Message, errMsg string) error {
	return h.transport.Send(protocol.NewResponse(protocol.TagSessionResponse, msg.ID, map[string]any{
		"success": false,
		"error":   errMsg,
	}))
}

func (h *Handler) handleToolsList(msg protocol.Message) error {
	var list []types.ToolDescriptor
	if h.tools != nil {
		list = h.tools.ListTools(h.pluginName)
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagToolsListResponse, msg.ID, map[string]any{"tools": list}))
}

func (h *Handler) handleToolsGet(msg protocol.Message) error {
	id, _ := msg.Payload["id"].(string)
	var tool types.ToolDescriptor
	var found bool
	if h.tools != nil {
		tool, found = h.tools.GetTool(h.pluginName, id)
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagToolsGetResponse, msg.ID, map[string]any{
		"tool":  tool,
		"found": found,
	}))
}

func (h *Handler) handleGuidesList(msg protocol.Message) error {
	var list []types.GuideDescriptor
	if h.guides != nil {
		list = h.guides.ListGuides()
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagGuidesListResponse, msg.ID, map[string]any{"guides": list}))
}

func (h *Handler) handleGuidesGet(msg protocol.Message) error {
	id, _ := msg.Payload["id"].(string)
	var content string
	var err error
	if h.guides != nil {
		content, err = h.guides.GetSystemPrompt(id)
	}
	payload := map[string]any{"content": content}
	if err != nil {
		payload["error"] = err.Error()
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagGuidesGetResponse, msg.ID, payload))
}

func (h *Handler) handleProvidersList(msg protocol.Message) error {
	var list []types.ProviderDescriptor
	if h.providers != nil {
		list = h.providers.ListProviders()
	}
	return h.transport.Send(protocol.NewResponse(protocol.TagProvidersListResponse, msg.ID, map[string]any{"providers": list}))
}

func (h *Handler) handleHeartbeat(msg protocol.Message) error {
	h.state.Mu.Lock()
	h.state.LastHeartbeat = time.Now()
	h.state.Mu.Unlock()
	return nil
}

// handlePendingReply resolves a previously-installed pending request. A
// reply whose id has no pending entry (because it already timed out) is
// silently discarded, matching spec §4.3's cancellation contract.
func (h *Handler) handlePendingReply(msg protocol.Message) error {
	h.state.Mu.Lock()
	pending, ok := h.state.PendingRPCs[msg.ReplyTo]
	if ok {
		delete(h.state.PendingRPCs, msg.ReplyTo)
	}
	h.state.Mu.Unlock()
	if !ok {
		return nil
	}
	pending.Timer.Stop()
	select {
	case pending.Done <- types.RPCOutcome{Payload: msg.Payload}:
	default:
	}
	return nil
}

// Invoke sends a host→worker request and blocks until the matching reply
// arrives or the per-call timeout expires, whichever comes first.
func (h *Handler) Invoke(tag protocol.Tag, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	id := uuid.NewString()
	done := make(chan types.RPCOutcome, 1)

	pending := &types.PendingRPC{ID: id, Done: done, StartedAt: time.Now()}
	h.state.Mu.Lock()
	h.state.PendingRPCs[id] = pending
	h.state.Mu.Unlock()

	pending.Timer = time.AfterFunc(timeout, func() {
		h.state.Mu.Lock()
		_, stillPending := h.state.PendingRPCs[id]
		delete(h.state.PendingRPCs, id)
		h.state.Mu.Unlock()
		if stillPending {
			select {
			case done <- types.RPCOutcome{Err: hosterrors.New(hosterrors.KindProtocol, h.pluginName, "Invoke",
				fmt.Errorf("request %s timed out after %s", id, timeout))}:
			default:
			}
		}
	})

	if err := h.transport.Send(protocol.NewRequest(tag, id, payload)); err != nil {
		pending.Timer.Stop()
		h.state.Mu.Lock()
		delete(h.state.PendingRPCs, id)
		h.state.Mu.Unlock()
		return nil, err
	}

	outcome := <-done
	return outcome.Payload, outcome.Err
}
