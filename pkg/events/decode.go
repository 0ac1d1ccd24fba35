package events

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

type payloadSetter interface {
	SetPayload([]byte)
}

// Decode turns a raw stream payload into a typed event through the codec
// registered for its type tag. Payloads that are not JSON, have no tag, an
// unregistered tag or do not match the shape of their tag decode to
// *EventUnknown; Decode never fails.
func Decode(b []byte) Event {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return NewUnknownEvent("", b)
	}

	dec, ok := lookupDecoder(hdr.Type)
	if !ok {
		return NewUnknownEvent(hdr.Type, b)
	}
	ev, err := dec(b)
	if err != nil || ev == nil {
		log.Debug().Err(err).Str("type", string(hdr.Type)).Msg("Keeping undecodable event as unknown")
		return NewUnknownEvent(hdr.Type, b)
	}
	if setter, ok := ev.(payloadSetter); ok {
		setter.SetPayload(b)
	}
	return ev
}
