package metrics

import (
	"sync/atomic"
)

// SinkMetrics are the sink counters. Producers bump EventsReceived and
// DroppedInQueueing, the flush worker everything else.
type SinkMetrics struct {
	eventsReceived    atomic.Int64
	droppedInQueueing atomic.Int64
	droppedInPush     atomic.Int64
	connectAttempts   atomic.Int64
	connectFailures   atomic.Int64
	batchPurges       atomic.Int64
	eventsPushed      atomic.Int64
	encodeFailures    atomic.Int64
}

type Snapshot struct {
	EventsReceived    int64
	DroppedInQueueing int64
	DroppedInPush     int64
	ConnectAttempts   int64
	ConnectFailures   int64
	BatchPurges       int64
	EventsPushed      int64
	EncodeFailures    int64
	QueueSize         int
	QueueCapacity     int
}

// Source is the read-only view handed to exposition code.
type Source interface {
	Snapshot() Snapshot
}

func (m *SinkMetrics) IncEventsReceived() { m.eventsReceived.Add(1) }
func (m *SinkMetrics) IncDroppedInQueueing() { m.droppedInQueueing.Add(1) }
func (m *SinkMetrics) AddDroppedInPush(n int) { m.droppedInPush.Add(int64(n)) }
func (m *SinkMetrics) IncConnectAttempts() { m.connectAttempts.Add(1) }
func (m *SinkMetrics) IncConnectFailures() { m.connectFailures.Add(1) }
func (m *SinkMetrics) IncBatchPurges() { m.batchPurges.Add(1) }
func (m *SinkMetrics) AddEventsPushed(n int) { m.eventsPushed.Add(int64(n)) }
func (m *SinkMetrics) IncEncodeFailures() { m.encodeFailures.Add(1) }
func (m *SinkMetrics) DroppedInQueueing() int64 { return m.droppedInQueueing.Load() }

// GetMetricsStamp copies the counters. Queue figures are filled in by the
// owner of the queue.
func (m *SinkMetrics) GetMetricsStamp() Snapshot {
	return Snapshot{
		EventsReceived:    m.eventsReceived.Load(),
		DroppedInQueueing: m.droppedInQueueing.Load(),
		DroppedInPush:     m.droppedInPush.Load(),
		ConnectAttempts:   m.connectAttempts.Load(),
		ConnectFailures:   m.connectFailures.Load(),
		BatchPurges:       m.batchPurges.Load(),
		EventsPushed:      m.eventsPushed.Load(),
		EncodeFailures:    m.encodeFailures.Load(),
	}
}

func (s Snapshot) QueueUsage() float64 {
	if s.QueueCapacity == 0 {
		return 0
	}
	return float64(s.QueueSize) / float64(s.QueueCapacity)
}
