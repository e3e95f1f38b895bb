// Package logger is the structured logging facade of the expression
// engine. Library code logs through the Logger interface so embedders can
// plug in their own sink; the default implementation writes through
// oarkflow/log.
package logger

// Field is one key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Logger is what the engine logs against.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NullLogger drops everything. It is the default for parsed expressions so
// that evaluation stays silent unless the embedder opts in.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (l *NullLogger) Debug(msg string, fields ...Field) {}
func (l *NullLogger) Info(msg string, fields ...Field)  {}
func (l *NullLogger) Warn(msg string, fields ...Field)  {}
func (l *NullLogger) Error(msg string, fields ...Field) {}
