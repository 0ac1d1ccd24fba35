package events

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// EventCodec decodes the payload of one stream event type.
type EventCodec func([]byte) (Event, error)

// codecs maps a type tag to its decoder. The built-in stream event types
// are registered at init; callers may add types the stream grows later.
var codecs = struct {
	sync.RWMutex
	byType map[EventType]EventCodec
}{byType: map[EventType]EventCodec{}}

func init() {
	builtin := map[EventType]EventCodec{
		EventTypePing:                      codecFor[EventPing](EventTypePing),
		EventTypeAgentUpdated:              codecFor[EventAgentUpdated](EventTypeAgentUpdated),
		EventTypeOutputItemAdded:           codecFor[EventOutputItem](EventTypeOutputItemAdded),
		EventTypeOutputItemDone:            codecFor[EventOutputItem](EventTypeOutputItemDone),
		EventTypeWebSearchInProgress:       codecFor[EventItemProgress](EventTypeWebSearchInProgress),
		EventTypeCodeInterpreterInProgress: codecFor[EventItemProgress](EventTypeCodeInterpreterInProgress),
		EventTypeMCPCallInProgress:         codecFor[EventItemProgress](EventTypeMCPCallInProgress),
		EventTypeToolCallDelta:             codecFor[EventToolCallDelta](EventTypeToolCallDelta),
		EventTypeOutputTextDelta:           codecFor[EventTextDelta](EventTypeOutputTextDelta),
		EventTypeResponseCompleted:         codecFor[EventResponseCompleted](EventTypeResponseCompleted),
		EventTypeResponseFailed:            codecFor[EventFailure](EventTypeResponseFailed),
		EventTypeError:                     codecFor[EventFailure](EventTypeError),
	}
	for t, c := range builtin {
		if err := RegisterEventCodec(string(t), c); err != nil {
			panic(err)
		}
	}
}

// codecFor decodes into a fresh *T and keeps the raw payload on it.
func codecFor[T any, PT interface {
	*T
	Event
	payloadSetter
}](t EventType) EventCodec {
	return func(b []byte) (Event, error) {
		var ret PT = new(T)
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, errors.Wrapf(err, "malformed %s event", t)
		}
		ret.SetPayload(b)
		return ret, nil
	}
}

// RegisterEventCodec adds a decoder for typeName. Registering a type twice
// is an error.
func RegisterEventCodec(typeName string, dec EventCodec) error {
	codecs.Lock()
	defer codecs.Unlock()
	t := EventType(typeName)
	if _, ok := codecs.byType[t]; ok {
		return errors.Errorf("event type %q already has a decoder", typeName)
	}
	codecs.byType[t] = dec
	return nil
}

// RegisterEventFactory registers a plain json.Unmarshal decoder into the
// events built by factory.
func RegisterEventFactory(typeName string, factory func() Event) error {
	return RegisterEventCodec(typeName, func(b []byte) (Event, error) {
		ev := factory()
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, err
		}
		return ev, nil
	})
}

func lookupDecoder(t EventType) (EventCodec, bool) {
	codecs.RLock()
	defer codecs.RUnlock()
	c, ok := codecs.byType[t]
	return c, ok
}
