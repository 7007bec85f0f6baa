package encoder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

const (
	JSON    = "json"
	MsgPack = "msgpack"
	CBOR    = "cbor"

	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Event is the stored shape of a record, modeled on the logstash event
// layout so downstream shippers can read it without a custom codec.
type Event struct {
	ID        string            `json:"@id,omitempty" msgpack:"@id,omitempty" cbor:"@id,omitempty"`
	Timestamp string            `json:"@timestamp" msgpack:"@timestamp" cbor:"@timestamp"`
	Version   int               `json:"@version" msgpack:"@version" cbor:"@version"`
	Host      string            `json:"source_host,omitempty" msgpack:"source_host,omitempty" cbor:"source_host,omitempty"`
	Logger    string            `json:"logger_name" msgpack:"logger_name" cbor:"logger_name"`
	Level     string            `json:"level" msgpack:"level" cbor:"level"`
	Message   string            `json:"message" msgpack:"message" cbor:"message"`
	Fields    map[string]string `json:"fields,omitempty" msgpack:"fields,omitempty" cbor:"fields,omitempty"`
}

func NewEvent(r logging.LogRecord) Event {
	return Event{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Version:   1,
		Host:      r.Host,
		Logger:    r.Logger,
		Level:     r.Level,
		Message:   r.Message,
		Fields:    r.Fields,
	}
}

type JSONEncoder struct{}

func (JSONEncoder) Encode(r logging.LogRecord) ([]byte, error) {
	return json.Marshal(NewEvent(r))
}

type MsgPackEncoder struct{}

func (MsgPackEncoder) Encode(r logging.LogRecord) ([]byte, error) {
	return msgpack.Marshal(NewEvent(r))
}

type CBOREncoder struct {
	mode cbor.EncMode
}

func NewCBOREncoder() (*CBOREncoder, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}
	return &CBOREncoder{mode: mode}, nil
}

func (e *CBOREncoder) Encode(r logging.LogRecord) ([]byte, error) {
	return e.mode.Marshal(NewEvent(r))
}

// ZstdEncoder compresses every encoded record as an independent zstd frame.
type ZstdEncoder struct {
	inner logging.Encoder
	zw    *zstd.Encoder
}

func NewZstdEncoder(inner logging.Encoder) (*ZstdEncoder, error) {
	zw, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zstd encoder: %w", err)
	}
	return &ZstdEncoder{inner: inner, zw: zw}, nil
}

func (e *ZstdEncoder) Encode(r logging.LogRecord) ([]byte, error) {
	raw, err := e.inner.Encode(r)
	if err != nil {
		return nil, err
	}
	return e.zw.EncodeAll(raw, nil), nil
}

// New builds the encoder named by format, optionally wrapped in compression.
func New(format, compression string) (logging.Encoder, error) {
	var enc logging.Encoder
	switch format {
	case "", JSON:
		enc = JSONEncoder{}
	case MsgPack:
		enc = MsgPackEncoder{}
	case CBOR:
		c, err := NewCBOREncoder()
		if err != nil {
			return nil, err
		}
		enc = c
	default:
		return nil, logging.NewConfigError("encoding", "unknown encoding %q", format)
	}

	switch compression {
	case "", CompressionNone:
		return enc, nil
	case CompressionZstd:
		return NewZstdEncoder(enc)
	default:
		return nil, logging.NewConfigError("compression", "unknown compression %q", compression)
	}
}
