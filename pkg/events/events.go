package events

import (
	"encoding/json"
	"strings"
)

type EventType string

const (
	// Control events, produced by the executor rather than the provider.
	EventTypeAgentUpdated EventType = "agent_updated_stream_event"
	EventTypePing         EventType = "ping"

	// Output item lifecycle, as streamed by the Responses API.
	EventTypeOutputItemAdded EventType = "response.output_item.added"
	EventTypeOutputItemDone  EventType = "response.output_item.done"

	// In-progress markers for server-side tools.
	EventTypeWebSearchInProgress       EventType = "response.web_search_call.in_progress"
	EventTypeCodeInterpreterInProgress EventType = "response.code_interpreter_call.in_progress"
	EventTypeMCPCallInProgress         EventType = "response.mcp_call.in_progress"

	// Function call argument streaming; surfaced as tool-call progress.
	EventTypeToolCallDelta EventType = "response.function_call_arguments.delta"

	EventTypeOutputTextDelta EventType = "response.output_text.delta"

	// Terminal event of a single model response, carries usage.
	EventTypeResponseCompleted EventType = "response.completed"
	EventTypeResponseFailed    EventType = "response.failed"
	EventTypeError             EventType = "error"
)

// ItemPhase is the lifecycle phase of an output item.
type ItemPhase string

const (
	ItemPhaseAdded      ItemPhase = "added"
	ItemPhaseInProgress ItemPhase = "in_progress"
	ItemPhaseDone       ItemPhase = "done"
)

type ItemType string

const (
	ItemTypeReasoning       ItemType = "reasoning"
	ItemTypeFunctionCall    ItemType = "function_call"
	ItemTypeCodeInterpreter ItemType = "code_interpreter_call"
	ItemTypeWebSearch       ItemType = "web_search_call"
	ItemTypeMessage         ItemType = "message"
	ItemTypeMCPCall         ItemType = "mcp_call"
)

// Event is one item of a stage's execution stream.
type Event interface {
	Type() EventType
	// Payload returns the raw JSON the event was decoded from, nil for
	// events constructed locally.
	Payload() []byte
}

type EventImpl struct {
	Type_ EventType `json:"type"`

	// raw JSON when the event was decoded (see Decode)
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

// SetPayload stores the raw JSON payload on the event implementation.
func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

// EventAgentUpdated signals that a (new) agent took control of the stream.
type EventAgentUpdated struct {
	EventImpl
	NewAgent string `json:"new_agent"`
}

func NewAgentUpdatedEvent(agent string) *EventAgentUpdated {
	return &EventAgentUpdated{
		EventImpl: EventImpl{Type_: EventTypeAgentUpdated},
		NewAgent:  agent,
	}
}

var _ Event = &EventAgentUpdated{}

type EventPing struct {
	EventImpl
}

func NewPingEvent() *EventPing {
	return &EventPing{EventImpl: EventImpl{Type_: EventTypePing}}
}

var _ Event = &EventPing{}

type SummaryPart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ItemAction is the nested action of built-in tool calls (web search).
type ItemAction struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	URL   string `json:"url,omitempty"`
}

type OutputItem struct {
	ID        string        `json:"id,omitempty"`
	Type      ItemType      `json:"type"`
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Code      string        `json:"code,omitempty"`
	Summary   []SummaryPart `json:"summary,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Action    *ItemAction   `json:"action,omitempty"`
}

// IsSearch reports whether the item carries a web search action.
func (i OutputItem) IsSearch() bool {
	return i.Action != nil && i.Action.Type == "search"
}

// Text concatenates the output_text parts of a message item.
func (i OutputItem) Text() string {
	var sb strings.Builder
	for _, c := range i.Content {
		if c.Type == "output_text" || c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// SummaryText returns the non-empty reasoning summary texts.
func (i OutputItem) SummaryText() []string {
	ret := []string{}
	for _, s := range i.Summary {
		if s.Text != "" {
			ret = append(ret, s.Text)
		}
	}
	return ret
}

// EventOutputItem is an added or done lifecycle event for one output item.
type EventOutputItem struct {
	EventImpl
	OutputIndex int        `json:"output_index"`
	Item        OutputItem `json:"item"`
}

func NewOutputItemEvent(phase ItemPhase, outputIndex int, item OutputItem) *EventOutputItem {
	t := EventTypeOutputItemAdded
	if phase == ItemPhaseDone {
		t = EventTypeOutputItemDone
	}
	return &EventOutputItem{
		EventImpl:   EventImpl{Type_: t},
		OutputIndex: outputIndex,
		Item:        item,
	}
}

func (e *EventOutputItem) Phase() ItemPhase {
	if e.Type_ == EventTypeOutputItemDone {
		return ItemPhaseDone
	}
	return ItemPhaseAdded
}

var _ Event = &EventOutputItem{}

// EventItemProgress marks a server-side tool item as in progress.
type EventItemProgress struct {
	EventImpl
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
}

func (e *EventItemProgress) Phase() ItemPhase {
	return ItemPhaseInProgress
}

func (e *EventItemProgress) ItemType() ItemType {
	switch e.Type_ {
	case EventTypeWebSearchInProgress:
		return ItemTypeWebSearch
	case EventTypeCodeInterpreterInProgress:
		return ItemTypeCodeInterpreter
	case EventTypeMCPCallInProgress:
		return ItemTypeMCPCall
	default:
		return ""
	}
}

var _ Event = &EventItemProgress{}

// EventToolCallDelta carries a chunk of function call arguments.
type EventToolCallDelta struct {
	EventImpl
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

var _ Event = &EventToolCallDelta{}

type EventTextDelta struct {
	EventImpl
	ItemID string `json:"item_id,omitempty"`
	Delta  string `json:"delta"`
}

func NewTextDeltaEvent(itemID, delta string) *EventTextDelta {
	return &EventTextDelta{
		EventImpl: EventImpl{Type_: EventTypeOutputTextDelta},
		ItemID:    itemID,
		Delta:     delta,
	}
}

var _ Event = &EventTextDelta{}

type ResponseInfo struct {
	ID     string `json:"id"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status,omitempty"`
	Usage  *Usage `json:"usage,omitempty"`
	Error  *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EventResponseCompleted terminates one model response and carries its usage.
type EventResponseCompleted struct {
	EventImpl
	Response ResponseInfo `json:"response"`
}

func NewResponseCompletedEvent(info ResponseInfo) *EventResponseCompleted {
	return &EventResponseCompleted{
		EventImpl: EventImpl{Type_: EventTypeResponseCompleted},
		Response:  info,
	}
}

var _ Event = &EventResponseCompleted{}

// EventFailure is an error or response.failed event from the provider.
type EventFailure struct {
	EventImpl
	Message  string        `json:"message,omitempty"`
	Code     string        `json:"code,omitempty"`
	Response *ResponseInfo `json:"response,omitempty"`
}

func (e *EventFailure) ErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Response != nil && e.Response.Error != nil {
		return e.Response.Error.Message
	}
	return string(e.Type_)
}

var _ Event = &EventFailure{}

// EventUnknown is the fallback variant for payloads without a recognized
// shape. Raw keeps whatever was received.
type EventUnknown struct {
	EventImpl
	Raw string `json:"-"`
}

func NewUnknownEvent(t EventType, raw []byte) *EventUnknown {
	ret := &EventUnknown{
		EventImpl: EventImpl{Type_: t},
		Raw:       string(raw),
	}
	ret.payload = raw
	return ret
}

func (e *EventUnknown) String() string {
	return e.Raw
}

func (e *EventUnknown) MarshalJSON() ([]byte, error) {
	if json.Valid(e.payload) {
		return e.payload, nil
	}
	return json.Marshal(map[string]string{
		"type": string(e.Type_),
		"raw":  e.Raw,
	})
}

var _ Event = &EventUnknown{}
