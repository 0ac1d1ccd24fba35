package display

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/agentic-research/pkg/helpers"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/rs/zerolog/log"
)

type jsonNotice struct {
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
	reducer.Notice
}

// NDJSONWriter writes one JSON object per notice, for consumption by
// other programs.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{enc: enc, now: time.Now}
}

func (j *NDJSONWriter) Handle(msg *message.Message) error {
	defer msg.Ack()
	n, err := decodeNotice(msg)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable notice")
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(jsonNotice{
		RunID:  msg.Metadata.Get(helpers.RunIDMetadataKey),
		Time:   j.now(),
		Notice: n,
	})
}
