package redis

import (
	"context"
	"errors"
	"sync"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
)

// fakeStore scripts which endpoints accept connections and how the server
// answers AUTH and PING.
type fakeStore struct {
	mu         sync.Mutex
	up         map[string]bool
	rejectAuth bool
	dialed     []string
	closed     int
	pushed     map[string][][]byte
}

func newFakeStore(up ...endpoint.Endpoint) *fakeStore {
	s := &fakeStore{up: map[string]bool{}, pushed: map[string][][]byte{}}
	for _, ep := range up {
		s.up[ep.String()] = true
	}
	return s
}

func (s *fakeStore) setUp(ep endpoint.Endpoint, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.up[ep.String()] = up
}

func (s *fakeStore) dialedAddrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.dialed))
	copy(out, s.dialed)
	return out
}

func (s *fakeStore) dialer() Dialer {
	return func(_ context.Context, ep endpoint.Endpoint) (Client, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		addr := ep.String()
		s.dialed = append(s.dialed, addr)
		if !s.up[addr] {
			return nil, &logging.ConnectionError{Endpoint: addr, Err: errors.New("connection refused")}
		}
		return &fakeClient{store: s, addr: addr}, nil
	}
}

type fakeClient struct {
	store *fakeStore
	addr  string
}

func (c *fakeClient) Auth(_, _ string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.store.rejectAuth {
		return &logging.DataRejectionError{Endpoint: c.addr, Err: errors.New("WRONGPASS invalid username-password pair")}
	}
	return nil
}

func (c *fakeClient) Ping() error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.store.up[c.addr] {
		return &logging.ConnectionError{Endpoint: c.addr, Err: errors.New("EOF")}
	}
	return nil
}

func (c *fakeClient) RPush(key string, values [][]byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.store.up[c.addr] {
		return &logging.ConnectionError{Endpoint: c.addr, Err: errors.New("broken pipe")}
	}
	c.store.pushed[key] = append(c.store.pushed[key], values...)
	return nil
}

func (c *fakeClient) Close() error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.closed++
	return nil
}
