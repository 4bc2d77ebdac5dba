package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillAdapter routes watermill's internal logging into zerolog.
type watermillAdapter struct {
	zl zerolog.Logger
}

// Watermill returns a watermill.LoggerAdapter backed by l.
func Watermill(l *Logger) watermill.LoggerAdapter {
	return &watermillAdapter{zl: l.zl}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.zl.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.zl.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Debug is demoted to trace; watermill is chatty at debug.
func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.zl.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.zl.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{zl: a.zl.With().Fields(map[string]interface{}(fields)).Logger()}
}
