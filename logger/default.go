package logger

import "github.com/oarkflow/log"

// DefaultLogger writes structured lines through an oarkflow/log logger.
type DefaultLogger struct {
	logger *log.Logger
}

// NewDefaultLogger wraps the given logger, or the package-level default
// when none is supplied.
func NewDefaultLogger(loggers ...*log.Logger) *DefaultLogger {
	l := &log.DefaultLogger
	if len(loggers) > 0 {
		l = loggers[0]
	}
	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	if l.logger == nil {
		return
	}
	l.logger.Debug().Map(fieldMap(fields)).Msg(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	if l.logger == nil {
		return
	}
	l.logger.Info().Map(fieldMap(fields)).Msg(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	if l.logger == nil {
		return
	}
	l.logger.Warn().Map(fieldMap(fields)).Msg(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	if l.logger == nil {
		return
	}
	l.logger.Error().Map(fieldMap(fields)).Msg(msg)
}

func fieldMap(fields []Field) map[string]any {
	kv := make(map[string]any, len(fields))
	for _, f := range fields {
		kv[f.Key] = f.Value
	}
	return kv
}
