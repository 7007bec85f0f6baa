package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redigo "github.com/gomodule/redigo/redis"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
)

// Client is the slice of the Redis protocol the sink needs. Command errors
// returned by the server must be reported as *logging.DataRejectionError,
// everything else as *logging.ConnectionError.
type Client interface {
	Auth(username, password string) error
	Ping() error
	RPush(key string, values [][]byte) error
	Close() error
}

// Dialer opens a transport connection to one endpoint.
type Dialer func(ctx context.Context, ep endpoint.Endpoint) (Client, error)

type redigoClient struct {
	conn redigo.Conn
	addr string
}

// DialRedigo returns a Dialer backed by redigo. timeout bounds the dial and
// every subsequent read and write.
func DialRedigo(timeout time.Duration) Dialer {
	return func(ctx context.Context, ep endpoint.Endpoint) (Client, error) {
		addr := ep.String()
		conn, err := redigo.DialContext(ctx, "tcp", addr,
			redigo.DialConnectTimeout(timeout),
			redigo.DialReadTimeout(timeout),
			redigo.DialWriteTimeout(timeout),
		)
		if err != nil {
			return nil, &logging.ConnectionError{Endpoint: addr, Err: err}
		}
		return &redigoClient{conn: conn, addr: addr}, nil
	}
}

func (c *redigoClient) Auth(username, password string) error {
	args := redigo.Args{}
	if username != "" {
		args = args.Add(username)
	}
	args = args.Add(password)

	reply, err := redigo.String(c.conn.Do("AUTH", args...))
	if err != nil {
		return c.classify(err)
	}
	if reply != "OK" {
		return &logging.DataRejectionError{Endpoint: c.addr, Err: fmt.Errorf("unexpected AUTH reply %q", reply)}
	}
	return nil
}

func (c *redigoClient) Ping() error {
	if _, err := c.conn.Do("PING"); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *redigoClient) RPush(key string, values [][]byte) error {
	args := make(redigo.Args, 0, len(values)+1)
	args = append(args, key)
	for _, v := range values {
		args = append(args, v)
	}
	if _, err := c.conn.Do("RPUSH", args...); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *redigoClient) Close() error {
	return c.conn.Close()
}

func (c *redigoClient) classify(err error) error {
	var reply redigo.Error
	if errors.As(err, &reply) {
		return &logging.DataRejectionError{Endpoint: c.addr, Err: err}
	}
	return &logging.ConnectionError{Endpoint: c.addr, Err: err}
}
