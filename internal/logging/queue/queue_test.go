package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

func TestQueue_RejectsBeyondCapacity(t *testing.T) {
	q := New(3)

	accepted, rejected := 0, 0
	for i := 0; i < 5; i++ {
		if q.TryEnqueue(logging.LogRecord{Message: fmt.Sprintf("m%d", i)}) {
			accepted++
		} else {
			rejected++
		}
	}

	assert.Equal(t, 3, accepted)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Cap())
}

func TestQueue_DrainFIFO(t *testing.T) {
	q := New(10)
	for i := 0; i < 4; i++ {
		require.True(t, q.TryEnqueue(logging.LogRecord{Message: fmt.Sprintf("m%d", i)}))
	}

	for i := 0; i < 4; i++ {
		r, ok := q.DrainOne()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("m%d", i), r.Message)
	}

	_, ok := q.DrainOne()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentProducersNeverExceedCapacity(t *testing.T) {
	const (
		capacity  = 100
		producers = 8
		perWorker = 500
	)
	q := New(capacity)

	var accepted, rejected atomic.Int64
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if q.TryEnqueue(logging.LogRecord{Message: fmt.Sprintf("w%d-%d", id, i)}) {
					accepted.Add(1)
				} else {
					rejected.Add(1)
				}
				assert.LessOrEqual(t, q.Len(), capacity)
			}
		}(p)
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			if _, ok := q.DrainOne(); ok {
				drained++
			}
		}
	}
	for {
		if _, ok := q.DrainOne(); !ok {
			break
		}
		drained++
	}

	assert.Equal(t, int64(producers*perWorker), accepted.Load()+rejected.Load())
	assert.Equal(t, accepted.Load(), int64(drained))
}
