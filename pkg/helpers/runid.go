// Package helpers ties notices published on the display bus to the workflow
// run that produced them and routes the bus's own logging into zerolog.
package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog/log"
)

// RunIDMetadataKey is the message metadata key carrying the run ID. It is
// also the field name of the run ID in NDJSON output.
const RunIDMetadataKey = "run_id"

type runIDKey struct{}

func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID stored in ctx. ok is false outside a run.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey{}).(string)
	return v, ok && v != ""
}

// RunTagger stamps published notices with the run they belong to. Notices
// published outside a run share one generated "gen_" ID per tagger, so a
// stray notice still groups with the rest of its process in NDJSON output.
type RunTagger struct {
	message.Publisher
	fallback string
}

func NewRunTagger(pub message.Publisher) *RunTagger {
	return &RunTagger{Publisher: pub, fallback: "gen_" + shortuuid.New()}
}

// FallbackRunID is the ID given to notices published without a run.
func (t *RunTagger) FallbackRunID() string {
	return t.fallback
}

func (t *RunTagger) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(RunIDMetadataKey) != "" {
			continue
		}
		runID, ok := RunIDFromContext(msg.Context())
		if !ok {
			log.Debug().Str("topic", topic).Str("message_uuid", msg.UUID).Msg("Notice published outside of a run")
			runID = t.fallback
		}
		msg.Metadata.Set(RunIDMetadataKey, runID)
	}
	return t.Publisher.Publish(topic, messages...)
}
