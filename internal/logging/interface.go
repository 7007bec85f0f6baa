package logging

import (
	"time"
)

type LogRecord struct {
	ID        string
	Timestamp time.Time
	Host      string
	Logger    string
	Level     string
	Message   string
	Fields    map[string]string
}

// Appender is the producer side of the sink. Append never blocks and reports
// whether the record was accepted.
type Appender interface {
	Append(record LogRecord) bool
}

type Lifecycle interface {
	Start() error
	Stop()
}

// Encoder turns a record into the bytes stored as one list element.
type Encoder interface {
	Encode(record LogRecord) ([]byte, error)
}

type EncoderFunc func(record LogRecord) ([]byte, error)

func (f EncoderFunc) Encode(record LogRecord) ([]byte, error) {
	return f(record)
}
