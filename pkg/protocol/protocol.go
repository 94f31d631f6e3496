package protocol

import "time"

// Tag names a message shape in the host<->worker wire protocol.
type Tag string

// Host-to-worker tags (spec §4.3).
const (
	TagInitPlugin            Tag = "INIT_PLUGIN"
	TagInvokeTool            Tag = "INVOKE_TOOL"
	TagBusEventDispatch      Tag = "BUS_EVENT_DISPATCH"
	TagToolsListResponse     Tag = "TOOLS_LIST_RESPONSE"
	TagToolsGetResponse      Tag = "TOOLS_GET_RESPONSE"
	TagGuidesListResponse    Tag = "GUIDES_LIST_RESPONSE"
	TagGuidesGetResponse     Tag = "GUIDES_GET_RESPONSE"
	TagProvidersListResponse Tag = "PROVIDERS_LIST_RESPONSE"
	TagProvidersGetResponse  Tag = "PROVIDERS_GET_RESPONSE"
	TagSessionResponse       Tag = "SESSION_RESPONSE"
	TagReset                 Tag = "RESET"
	TagShutdown              Tag = "SHUTDOWN"
)

// Worker-to-host tags (spec §4.3).
const (
	TagInitComplete      Tag = "INIT_COMPLETE"
	TagToolResult        Tag = "TOOL_RESULT"
	TagBusEmit           Tag = "BUS_EMIT"
	TagBusSubscribe      Tag = "BUS_SUBSCRIBE"
	TagBusUnsubscribe    Tag = "BUS_UNSUBSCRIBE"
	TagPushInput         Tag = "PUSH_INPUT"
	TagSessionRequest    Tag = "SESSION_REQUEST"
	TagToolsListRequest  Tag = "TOOLS_LIST_REQUEST"
	TagToolsGetRequest   Tag = "TOOLS_GET_REQUEST"
	TagGuidesListRequest Tag = "GUIDES_LIST_REQUEST"
	TagGuidesGetRequest  Tag = "GUIDES_GET_REQUEST"
	TagProvidersListReq  Tag = "PROVIDERS_LIST_REQUEST"
	TagProvidersGetReq   Tag = "PROVIDERS_GET_REQUEST"
	TagHeartbeat         Tag = "HEARTBEAT"
	TagResetComplete     Tag = "RESET_COMPLETE"
)

// DefaultTimeout is the per-call timeout for request/response message pairs
// (spec §4.3).
const DefaultTimeout = 30 * time.Second

// oneWayTags never expect a reply and never carry an ID (spec §4.3: "BUS_EMIT
// and PUSH_INPUT are one-way").
var oneWayTags = map[Tag]bool{
	TagBusEmit:   true,
	TagPushInput: true,
}

// IsOneWay reports whether messages tagged t never receive a response.
func IsOneWay(tag Tag) bool {
	return oneWayTags[tag]
}

// Message is the flat envelope carried over the worker transport. Payload is
// tag-specific and left as a raw map so callers decode only the fields their
// tag defines — mirroring the protocol's "disjoint-tagged union" shape
// without requiring one Go struct per tag.
type Message struct {
	Tag     Tag            `json:"type"`
	ID      string         `json:"id,omitempty"`
	ReplyTo string         `json:"replyTo,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewRequest builds a Message expecting a reply correlated by id.
func NewRequest(tag Tag, id string, payload map[string]any) Message {
	return Message{Tag: tag, ID: id, Payload: payload}
}

// NewResponse builds a Message answering the request identified by replyTo.
func NewResponse(tag Tag, replyTo string, payload map[string]any) Message {
	return Message{Tag: tag, ReplyTo: replyTo, Payload: payload}
}

// NewOneWay builds a fire-and-forget Message. It panics if tag is not a
// registered one-way tag — a caller reaching for this constructor on a
// request/response tag is a programming error, not a runtime condition.
func NewOneWay(tag Tag, payload map[string]any) Message {
	if !IsOneWay(tag) {
		panic("protocol: " + string(tag) + " is not a one-way message tag")
	}
	return Message{Tag: tag, Payload: payload}
}

// BusEventDispatchPayload is the shape carried by TagBusEventDispatch (spec
// §4.3: "carries (eventType, timestamp, payload)").
type BusEventDispatchPayload struct {
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}
