package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

func endpointOf(t *testing.T, s *miniredis.Miniredis) endpoint.Endpoint {
	ep, err := endpoint.Parse(s.Addr())
	require.NoError(t, err)
	return ep
}

func newTestConnection(t *testing.T, creds Credentials) (*Connection, *metrics.SinkMetrics) {
	m := &metrics.SinkMetrics{}
	return NewConnection(DialRedigo(time.Second), creds, m, zaptest.NewLogger(t)), m
}

func TestConnection_ConnectAndPush(t *testing.T) {
	s := miniredis.RunT(t)
	conn, m := newTestConnection(t, Credentials{})
	conn.Retarget(endpointOf(t, s))

	assert.Equal(t, Disconnected, conn.State())
	require.True(t, conn.Connect(context.Background()))
	assert.Equal(t, Connected, conn.State())

	require.NoError(t, conn.Push("logs", [][]byte{[]byte("a"), []byte("b")}))
	require.NoError(t, conn.Push("logs", [][]byte{[]byte("c")}))

	list, err := s.List("logs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, list)

	require.True(t, conn.Connect(context.Background()))
	assert.Equal(t, int64(1), m.GetMetricsStamp().ConnectAttempts, "connect is a no-op while connected")

	conn.Disconnect()
	assert.Equal(t, Disconnected, conn.State())
	conn.Disconnect()
}

func TestConnection_Auth(t *testing.T) {
	s := miniredis.RunT(t)
	s.RequireAuth("secret")

	conn, _ := newTestConnection(t, Credentials{Password: "secret"})
	conn.Retarget(endpointOf(t, s))
	require.True(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Push("logs", [][]byte{[]byte("a")}))
	conn.Disconnect()

	conn, m := newTestConnection(t, Credentials{Password: "wrong"})
	conn.Retarget(endpointOf(t, s))
	assert.False(t, conn.Connect(context.Background()), "ping without a valid AUTH must fail the probe")
	assert.Equal(t, int64(1), m.GetMetricsStamp().ConnectFailures)
}

func TestConnection_LenientAuthFailureStillConnects(t *testing.T) {
	ep := endpoint.Endpoint{Host: "redis-a", Port: 6379}
	store := newFakeStore(ep)
	store.rejectAuth = true

	m := &metrics.SinkMetrics{}
	conn := NewConnection(store.dialer(), Credentials{Password: "pw"}, m, zaptest.NewLogger(t))
	conn.Retarget(ep)

	assert.True(t, conn.Connect(context.Background()))
	assert.Equal(t, int64(0), m.GetMetricsStamp().ConnectFailures)
}

func TestConnection_StrictAuthFailureFails(t *testing.T) {
	ep := endpoint.Endpoint{Host: "redis-a", Port: 6379}
	store := newFakeStore(ep)
	store.rejectAuth = true

	m := &metrics.SinkMetrics{}
	conn := NewConnection(store.dialer(), Credentials{Password: "pw", Strict: true}, m, zaptest.NewLogger(t))
	conn.Retarget(ep)

	assert.False(t, conn.Connect(context.Background()))
	assert.Equal(t, Disconnected, conn.State())
	assert.Equal(t, int64(1), m.GetMetricsStamp().ConnectFailures)
	assert.Equal(t, 1, store.closed)
}

func TestConnection_DataRejection(t *testing.T) {
	s := miniredis.RunT(t)
	require.NoError(t, s.Set("logs", "not a list"))

	conn, _ := newTestConnection(t, Credentials{})
	conn.Retarget(endpointOf(t, s))
	require.True(t, conn.Connect(context.Background()))

	err := conn.Push("logs", [][]byte{[]byte("a")})
	var rejected *logging.DataRejectionError
	assert.ErrorAs(t, err, &rejected)
	assert.True(t, conn.Connected(), "a rejected command leaves the connection usable")
}

func TestConnection_ConnectionFailureOnPush(t *testing.T) {
	s := miniredis.RunT(t)
	conn, _ := newTestConnection(t, Credentials{})
	conn.Retarget(endpointOf(t, s))
	require.True(t, conn.Connect(context.Background()))

	s.Close()

	err := conn.Push("logs", [][]byte{[]byte("a")})
	var connErr *logging.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestConnection_UnreachableEndpoint(t *testing.T) {
	s := miniredis.RunT(t)
	ep := endpointOf(t, s)
	s.Close()

	conn, m := newTestConnection(t, Credentials{})
	conn.Retarget(ep)

	assert.False(t, conn.Connect(context.Background()))
	stamp := m.GetMetricsStamp()
	assert.Equal(t, int64(1), stamp.ConnectAttempts)
	assert.Equal(t, int64(1), stamp.ConnectFailures)

	err := conn.Push("logs", [][]byte{[]byte("a")})
	var connErr *logging.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}
