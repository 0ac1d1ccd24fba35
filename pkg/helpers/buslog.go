package helpers

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// BusLogger reports the display bus's internal logging through zerolog,
// tagged with component=display-bus. The bus logs every routed notice at
// info, so info is demoted to debug to keep -v output about the research.
type BusLogger struct {
	logger zerolog.Logger
}

func NewBusLogger(logger zerolog.Logger) *BusLogger {
	return &BusLogger{logger: logger.With().Str("component", "display-bus").Logger()}
}

var _ watermill.LoggerAdapter = &BusLogger{}

func (b *BusLogger) emit(e *zerolog.Event, msg string, fields watermill.LogFields) {
	e.Fields(map[string]interface{}(fields)).Msg(msg)
}

func (b *BusLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.emit(b.logger.Error().Err(err), msg, fields)
}

func (b *BusLogger) Info(msg string, fields watermill.LogFields) {
	b.emit(b.logger.Debug(), msg, fields)
}

func (b *BusLogger) Debug(msg string, fields watermill.LogFields) {
	b.emit(b.logger.Debug(), msg, fields)
}

func (b *BusLogger) Trace(msg string, fields watermill.LogFields) {
	b.emit(b.logger.Trace(), msg, fields)
}

func (b *BusLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &BusLogger{logger: b.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
