package redis

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

type Credentials struct {
	Username string
	Password string
	// Strict makes a rejected AUTH fail the connect. Otherwise the failure
	// is logged and the liveness probe decides.
	Strict bool
}

// Connection owns at most one live client to its target endpoint. It is
// only used from the flush worker.
type Connection struct {
	dial    Dialer
	creds   Credentials
	target  endpoint.Endpoint
	client  Client
	metrics *metrics.SinkMetrics
	logger  *zap.Logger
}

func NewConnection(dial Dialer, creds Credentials, m *metrics.SinkMetrics, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = &metrics.SinkMetrics{}
	}
	return &Connection{
		dial:    dial,
		creds:   creds,
		metrics: m,
		logger:  logger,
	}
}

func (c *Connection) State() State {
	if c.client != nil {
		return Connected
	}
	return Disconnected
}

func (c *Connection) Connected() bool {
	return c.client != nil
}

func (c *Connection) Target() endpoint.Endpoint {
	return c.target
}

// Retarget drops any live client and points the connection at ep.
func (c *Connection) Retarget(ep endpoint.Endpoint) {
	if c.client != nil {
		c.Disconnect()
	}
	c.target = ep
}

// Connect brings the connection up unless it already is. Failures are
// counted and logged, never returned.
func (c *Connection) Connect(ctx context.Context) bool {
	if c.client != nil {
		return true
	}

	addr := c.target.String()
	c.logger.Debug("Connecting to Redis", zap.String("endpoint", addr))
	c.metrics.IncConnectAttempts()

	client, err := c.dial(ctx, c.target)
	if err != nil {
		c.metrics.IncConnectFailures()
		c.logger.Debug("Connect failed", zap.String("endpoint", addr), zap.Error(err))
		return false
	}

	if c.creds.Password != "" {
		if err := client.Auth(c.creds.Username, c.creds.Password); err != nil {
			authErr := &logging.AuthError{Endpoint: addr, Err: err}
			var connErr *logging.ConnectionError
			if c.creds.Strict || errors.As(err, &connErr) {
				c.fail(client, addr, authErr)
				return false
			}
			c.logger.Error("Error authenticating with Redis", zap.String("endpoint", addr), zap.Error(authErr))
		}
	}

	if err := client.Ping(); err != nil {
		c.fail(client, addr, err)
		return false
	}

	c.client = client
	c.logger.Info("Connected to Redis", zap.String("endpoint", addr))
	return true
}

func (c *Connection) fail(client Client, addr string, err error) {
	c.metrics.IncConnectFailures()
	c.logger.Debug("Connect failed", zap.String("endpoint", addr), zap.Error(err))
	_ = client.Close()
}

// Disconnect closes the live client, if any. Close errors are only logged.
func (c *Connection) Disconnect() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.logger.Warn("Disconnect failed", zap.String("endpoint", c.target.String()), zap.Error(err))
	}
	c.client = nil
}

// Push appends values to key in a single RPUSH.
func (c *Connection) Push(key string, values [][]byte) error {
	if c.client == nil {
		return &logging.ConnectionError{Endpoint: c.target.String(), Err: errors.New("not connected")}
	}
	return c.client.RPush(key, values)
}
