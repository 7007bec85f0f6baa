package endpoint

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

func TestParseList(t *testing.T) {
	eps, err := ParseList("redis-a:6379, redis-b:6380,10.0.0.7:7000")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Host: "redis-a", Port: 6379},
		{Host: "redis-b", Port: 6380},
		{Host: "10.0.0.7", Port: 7000},
	}, eps)
	assert.Equal(t, "redis-b:6380", eps[1].String())
}

func TestParseList_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"redis-a",
		"redis-a:",
		":6379",
		"redis-a:port",
		"redis-a:0",
		"redis-a:70000",
		"redis-a:6379,,redis-b:6379",
	} {
		_, err := ParseList(raw)
		var cfgErr *logging.ConfigError
		assert.True(t, errors.As(err, &cfgErr), "expected ConfigError for %q, got %v", raw, err)
	}
}

func TestParse_IPv6(t *testing.T) {
	ep, err := Parse("[::1]:6379")
	require.NoError(t, err)
	assert.Equal(t, "::1", ep.Host)
	assert.Equal(t, "[::1]:6379", ep.String())
}

func TestShuffle_IsPermutation(t *testing.T) {
	eps := []Endpoint{{"a", 1}, {"b", 2}, {"c", 3}, {"d", 4}, {"e", 5}}
	rnd := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 50; i++ {
		shuffled := Shuffle(eps, rnd)
		assert.ElementsMatch(t, eps, shuffled)
	}
	assert.Equal(t, Endpoint{"a", 1}, eps[0], "input must not be modified")
}

func TestShuffle_CoversAllPositions(t *testing.T) {
	eps := []Endpoint{{"a", 1}, {"b", 2}, {"c", 3}}
	rnd := rand.New(rand.NewPCG(7, 11))

	firsts := map[string]int{}
	for i := 0; i < 3000; i++ {
		firsts[Shuffle(eps, rnd)[0].Host]++
	}
	for _, ep := range eps {
		assert.InDelta(t, 1000, firsts[ep.Host], 150, "endpoint %s", ep.Host)
	}
}

func TestPool_AdvanceWraps(t *testing.T) {
	eps := []Endpoint{{"a", 1}, {"b", 2}, {"c", 3}}
	pool, err := NewPool(eps, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)

	order := pool.Order()
	assert.Equal(t, 3, pool.Len())
	assert.Equal(t, 0, pool.Cursor())
	assert.Equal(t, order[0], pool.Current())

	assert.Equal(t, order[1], pool.Advance())
	assert.Equal(t, order[2], pool.Advance())
	assert.Equal(t, order[0], pool.Advance())
	assert.Equal(t, 0, pool.Cursor())
	assert.Equal(t, order, pool.Order(), "order is fixed once computed")
}

func TestNewPool_Empty(t *testing.T) {
	_, err := NewPool(nil, nil)
	var cfgErr *logging.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
