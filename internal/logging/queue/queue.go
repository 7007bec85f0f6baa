package queue

import (
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

// Queue is a bounded FIFO of pending records. TryEnqueue is safe from any
// number of goroutines; DrainOne is meant for a single consumer.
type Queue struct {
	records chan logging.LogRecord
}

func New(capacity int) *Queue {
	return &Queue{records: make(chan logging.LogRecord, capacity)}
}

// TryEnqueue adds the record if there is room and never blocks. A false
// return means the record was rejected and is the caller's to count.
func (q *Queue) TryEnqueue(record logging.LogRecord) bool {
	select {
	case q.records <- record:
		return true
	default:
		return false
	}
}

// DrainOne removes the oldest record, or reports false when the queue is empty.
func (q *Queue) DrainOne() (logging.LogRecord, bool) {
	select {
	case record := <-q.records:
		return record, true
	default:
		return logging.LogRecord{}, false
	}
}

func (q *Queue) Len() int {
	return len(q.records)
}

func (q *Queue) Cap() int {
	return cap(q.records)
}
