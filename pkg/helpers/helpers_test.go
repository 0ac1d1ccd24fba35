package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []*message.Message
}

func (r *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	r.published = append(r.published, messages...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestRunTagger(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewRunTagger(rec)

	inRun := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	inRun.SetContext(ContextWithRunID(context.Background(), "run-1"))

	preset := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	preset.Metadata.Set(RunIDMetadataKey, "kept")
	preset.SetContext(ContextWithRunID(context.Background(), "run-2"))

	stray1 := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	stray2 := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	stray2.SetContext(ContextWithRunID(context.Background(), ""))

	require.NoError(t, pub.Publish("notices", inRun, preset, stray1, stray2))
	require.Len(t, rec.published, 4)
	assert.Equal(t, "run-1", rec.published[0].Metadata.Get(RunIDMetadataKey))
	assert.Equal(t, "kept", rec.published[1].Metadata.Get(RunIDMetadataKey))

	fallback := pub.FallbackRunID()
	assert.True(t, strings.HasPrefix(fallback, "gen_"))
	assert.Equal(t, fallback, rec.published[2].Metadata.Get(RunIDMetadataKey))
	assert.Equal(t, fallback, rec.published[3].Metadata.Get(RunIDMetadataKey))

	assert.NotEqual(t, fallback, NewRunTagger(rec).FallbackRunID())
}

func TestRunIDFromContext(t *testing.T) {
	_, ok := RunIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := RunIDFromContext(ContextWithRunID(context.Background(), "run-7"))
	assert.True(t, ok)
	assert.Equal(t, "run-7", id)
}

func TestBusLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewBusLogger(zerolog.New(buf).Level(zerolog.DebugLevel))

	logger.Info("Adding handler", watermill.LogFields{"handler_name": "printer"})
	logger.Trace("dropped", nil)
	logger.With(watermill.LogFields{"topic": "notices"}).
		Error("Handler returned error", errors.New("closed pipe"), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info, failed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))

	assert.Equal(t, "debug", info["level"])
	assert.Equal(t, "display-bus", info["component"])
	assert.Equal(t, "printer", info["handler_name"])

	assert.Equal(t, "error", failed["level"])
	assert.Equal(t, "notices", failed["topic"])
	assert.Equal(t, "closed pipe", failed["error"])
}
