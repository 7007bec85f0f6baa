package redis

import (
	"context"

	"go.uber.org/zap"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
)

type FailoverState int

const (
	TryingCurrent FailoverState = iota
	RotatingNext
	Exhausted
	FailoverConnected
)

func (s FailoverState) String() string {
	switch s {
	case TryingCurrent:
		return "trying-current"
	case RotatingNext:
		return "rotating-next"
	case Exhausted:
		return "exhausted"
	case FailoverConnected:
		return "connected"
	}
	return "unknown"
}

// Failover keeps a Connection up by walking the pool's shuffled order. Only
// failures move the cursor, so a healthy endpoint is kept across cycles.
type Failover struct {
	pool   *endpoint.Pool
	conn   *Connection
	key    string
	state  FailoverState
	logger *zap.Logger
}

func NewFailover(pool *endpoint.Pool, conn *Connection, key string, logger *zap.Logger) *Failover {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn.Retarget(pool.Current())
	return &Failover{
		pool:   pool,
		conn:   conn,
		key:    key,
		state:  TryingCurrent,
		logger: logger,
	}
}

func (f *Failover) State() FailoverState {
	return f.state
}

func (f *Failover) Current() endpoint.Endpoint {
	return f.pool.Current()
}

func (f *Failover) Order() []endpoint.Endpoint {
	return f.pool.Order()
}

// EnsureConnected returns true once a connection is up. It tries the endpoint
// at the cursor, then every other endpoint once, in order. When all of them
// fail the cursor is back where it started and the next call retries the
// whole pool.
func (f *Failover) EnsureConnected(ctx context.Context) bool {
	if f.conn.Connected() {
		f.state = FailoverConnected
		return true
	}

	f.state = TryingCurrent
	if f.conn.Connect(ctx) {
		f.state = FailoverConnected
		return true
	}

	start := f.pool.Cursor()
	f.state = RotatingNext
	for {
		next := f.pool.Advance()
		if f.pool.Cursor() == start {
			break
		}
		f.logger.Debug("Connect failed, trying the next endpoint", zap.String("endpoint", next.String()))
		f.conn.Retarget(next)
		if f.conn.Connect(ctx) {
			f.state = FailoverConnected
			f.logger.Info("Failed over to endpoint", zap.String("endpoint", next.String()))
			return true
		}
	}

	f.state = Exhausted
	f.conn.Retarget(f.pool.Current())
	f.logger.Warn("Connect failed, no more endpoints to try", zap.Int("endpoints", f.pool.Len()))
	return false
}

// Push appends values to the destination list over the current connection.
func (f *Failover) Push(_ context.Context, values [][]byte) error {
	return f.conn.Push(f.key, values)
}

func (f *Failover) Disconnect() {
	f.conn.Disconnect()
	if f.state == FailoverConnected {
		f.state = TryingCurrent
	}
}
