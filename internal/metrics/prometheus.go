package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "redis_log_sink"

// Collector exposes a Source to Prometheus. It reads a fresh snapshot on
// every scrape and never writes to the source.
type Collector struct {
	source Source

	eventsReceived    *prometheus.Desc
	droppedInQueueing *prometheus.Desc
	droppedInPush     *prometheus.Desc
	connectAttempts   *prometheus.Desc
	connectFailures   *prometheus.Desc
	batchPurges       *prometheus.Desc
	eventsPushed      *prometheus.Desc
	encodeFailures    *prometheus.Desc
	queueSize         *prometheus.Desc
	queueCapacity     *prometheus.Desc
}

func NewCollector(source Source, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	return &Collector{
		source:            source,
		eventsReceived:    desc("events_received_total", "Records offered to the sink by producers."),
		droppedInQueueing: desc("events_dropped_in_queueing_total", "Records rejected because the queue was full."),
		droppedInPush:     desc("events_dropped_in_push_total", "Records discarded when the store rejected a batch."),
		connectAttempts:   desc("connect_attempts_total", "Connection attempts against store endpoints."),
		connectFailures:   desc("connect_failures_total", "Failed connection attempts."),
		batchPurges:       desc("batch_purges_total", "Batches purged after a store side rejection."),
		eventsPushed:      desc("events_pushed_total", "Records appended to the destination list."),
		encodeFailures:    desc("encode_failures_total", "Records skipped because they could not be encoded."),
		queueSize:         desc("queue_size", "Records waiting in the queue."),
		queueCapacity:     desc("queue_capacity", "Configured queue capacity."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsReceived
	ch <- c.droppedInQueueing
	ch <- c.droppedInPush
	ch <- c.connectAttempts
	ch <- c.connectFailures
	ch <- c.batchPurges
	ch <- c.eventsPushed
	ch <- c.encodeFailures
	ch <- c.queueSize
	ch <- c.queueCapacity
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.eventsReceived, s.EventsReceived)
	counter(c.droppedInQueueing, s.DroppedInQueueing)
	counter(c.droppedInPush, s.DroppedInPush)
	counter(c.connectAttempts, s.ConnectAttempts)
	counter(c.connectFailures, s.ConnectFailures)
	counter(c.batchPurges, s.BatchPurges)
	counter(c.eventsPushed, s.EventsPushed)
	counter(c.encodeFailures, s.EncodeFailures)
	ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(s.QueueSize))
	ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(s.QueueCapacity))
}
