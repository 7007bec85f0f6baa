package endpoint

import (
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func Parse(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{}, logging.NewConfigError("endpoints", "malformed endpoint %q: %v", raw, err)
	}
	if host == "" {
		return Endpoint{}, logging.NewConfigError("endpoints", "endpoint %q has no host", raw)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, logging.NewConfigError("endpoints", "endpoint %q has invalid port %q", raw, portStr)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseList parses a comma separated list of host:port pairs.
func ParseList(raw string) ([]Endpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, logging.NewConfigError("endpoints", "must set at least one host:port")
	}

	parts := strings.Split(raw, ",")
	endpoints := make([]Endpoint, 0, len(parts))
	for _, part := range parts {
		ep, err := Parse(part)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Shuffle returns a uniformly random permutation of endpoints (Fisher-Yates).
// The input slice is left untouched.
func Shuffle(endpoints []Endpoint, rnd *rand.Rand) []Endpoint {
	shuffled := make([]Endpoint, len(endpoints))
	copy(shuffled, endpoints)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// Pool is the shuffled traversal order over the configured endpoints plus a
// cursor at the currently selected one. The order is fixed for the lifetime
// of the pool. Pool is not safe for concurrent use; only the flush worker
// touches it.
type Pool struct {
	order  []Endpoint
	cursor int
}

func NewPool(endpoints []Endpoint, rnd *rand.Rand) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, logging.NewConfigError("endpoints", "must set at least one host:port")
	}
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Pool{order: Shuffle(endpoints, rnd)}, nil
}

func (p *Pool) Len() int {
	return len(p.order)
}

func (p *Pool) Order() []Endpoint {
	order := make([]Endpoint, len(p.order))
	copy(order, p.order)
	return order
}

func (p *Pool) Cursor() int {
	return p.cursor
}

func (p *Pool) Current() Endpoint {
	return p.order[p.cursor]
}

// Advance rotates the cursor to the next endpoint in the shuffled order,
// wrapping around, and returns it.
func (p *Pool) Advance() Endpoint {
	p.cursor = (p.cursor + 1) % len(p.order)
	return p.order[p.cursor]
}
