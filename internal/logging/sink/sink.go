package sink

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Chichichkin/RedisLoggingAgent/internal/config"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/batch"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/encoder"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/queue"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/redis"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

type state int

const (
	created state = iota
	running
	stopped
)

// Sink ships records to a Redis list. Append may be called from any
// goroutine and never blocks; everything else happens on one worker
// goroutine that runs a flush cycle every FlushInterval, measured from the
// end of the previous cycle.
type Sink struct {
	config    config.Sink
	queue     *queue.Queue
	assembler *batch.Assembler
	failover  *redis.Failover
	metrics   *metrics.SinkMetrics
	logger    *zap.Logger

	dropLog *rate.Limiter

	closed atomic.Bool
	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
	done   chan struct{}
}

type options struct {
	logger  *zap.Logger
	encoder logging.Encoder
	dialer  redis.Dialer
	rand    *rand.Rand
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEncoder overrides the encoder built from the configured encoding.
func WithEncoder(enc logging.Encoder) Option {
	return func(o *options) { o.encoder = enc }
}

func WithDialer(dialer redis.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithRand fixes the random source used to shuffle endpoints.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) { o.rand = rnd }
}

// New validates cfg and wires the pipeline. It returns a *logging.ConfigError
// when the options are unusable; nothing is started in that case.
func New(cfg config.Sink, opts ...Option) (*Sink, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	logger := o.logger.Named("redis-sink")

	if err := cfg.Validate(); err != nil {
		logger.Error("Sink not activated", zap.Error(err))
		return nil, err
	}
	eps, err := cfg.EndpointList()
	if err != nil {
		return nil, err
	}
	pool, err := endpoint.NewPool(eps, o.rand)
	if err != nil {
		return nil, err
	}

	if o.encoder == nil {
		o.encoder, err = encoder.New(cfg.Encoding, cfg.Compression)
		if err != nil {
			logger.Error("Sink not activated", zap.Error(err))
			return nil, err
		}
	}
	if o.dialer == nil {
		o.dialer = redis.DialRedigo(cfg.DialTimeout())
	}

	m := &metrics.SinkMetrics{}
	q := queue.New(cfg.QueueCapacity)
	conn := redis.NewConnection(o.dialer, redis.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
		Strict:   cfg.StrictAuth,
	}, m, logger.Named("connection"))
	failover := redis.NewFailover(pool, conn, cfg.Key, logger.Named("failover"))
	assembler := batch.NewAssembler(q, o.encoder, failover, batch.Config{
		BatchSize:      cfg.BatchCapacity,
		PurgeOnFailure: cfg.PurgeOnPushFailure,
		FlushPartial:   cfg.FlushPartialBatches,
	}, m, logger.Named("batch"))

	return &Sink{
		config:    cfg,
		queue:     q,
		assembler: assembler,
		failover:  failover,
		metrics:   m,
		logger:    logger,
		dropLog:   rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Append offers a record to the queue. A full queue, or a stopped sink,
// rejects it and counts the drop.
func (s *Sink) Append(record logging.LogRecord) bool {
	s.metrics.IncEventsReceived()

	if !s.closed.Load() && s.queue.TryEnqueue(record) {
		return true
	}

	s.metrics.IncDroppedInQueueing()
	if s.dropLog.Allow() {
		s.logger.Warn("Dropping record, queue full or sink stopped",
			zap.Int("queue_capacity", s.queue.Cap()),
			zap.Int64("dropped_total", s.metrics.DroppedInQueueing()))
	}
	return false
}

func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != created {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = running

	go s.run(ctx)

	var eps []string
	for _, ep := range s.failover.Order() {
		eps = append(eps, ep.String())
	}
	s.logger.Info("Redis sink started",
		zap.Strings("endpoints", eps),
		zap.String("key", s.config.Key),
		zap.Int("queue_capacity", s.config.QueueCapacity),
		zap.Int("batch_capacity", s.config.BatchCapacity),
		zap.Duration("flush_interval", s.config.FlushInterval()))
	return nil
}

// Stop cancels the worker, waits up to ShutdownTimeout for an in-flight cycle,
// then flushes what is left and disconnects. Only the first call does
// anything.
func (s *Sink) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = stopped
	s.closed.Store(true)
	s.mu.Unlock()

	if prev != running {
		return
	}

	s.cancel()

	// A zero timeout leaves the wait unbounded; the transport timeouts still
	// bound an in-flight push.
	var timeout <-chan time.Time
	if d := s.config.ShutdownTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-s.done:
		s.flush(true)
		s.failover.Disconnect()
		stamp := s.Snapshot()
		s.logger.Info("Redis sink stopped",
			zap.Int64("events_pushed", stamp.EventsPushed),
			zap.Int64("dropped_in_queueing", stamp.DroppedInQueueing),
			zap.Int64("dropped_in_push", stamp.DroppedInPush))
	case <-timeout:
		s.logger.Warn("Flush worker did not finish in time, log entries may be lost",
			zap.Duration("timeout", s.config.ShutdownTimeout()),
			zap.Int("queued", s.queue.Len()))
		go func() {
			<-s.done
			s.failover.Disconnect()
		}()
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	interval := s.config.FlushInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.flush(false)
			timer.Reset(interval)
		case <-ctx.Done():
			return
		}
	}
}

// flush runs one cycle. Pushes are not cancellable; the transport timeouts
// bound them.
func (s *Sink) flush(final bool) {
	ctx := context.Background()

	if !s.failover.EnsureConnected(ctx) {
		if final {
			s.logger.Warn("No Redis endpoint reachable at shutdown, log entries lost",
				zap.Int("queued", s.queue.Len()),
				zap.Int("batched", s.assembler.Pending()))
		}
		return
	}

	err := s.assembler.Cycle(ctx, final)
	if err == nil {
		return
	}

	var connErr *logging.ConnectionError
	var rejected *logging.DataRejectionError
	switch {
	case errors.As(err, &connErr) && final:
		s.logger.Warn("Can't push events to Redis at shutdown, log entries lost",
			zap.Int("queued", s.queue.Len()),
			zap.Int("batched", s.assembler.Pending()),
			zap.Error(err))
		s.failover.Disconnect()
	case errors.As(err, &connErr):
		s.logger.Debug("Can't push events to Redis, reconnecting for retry",
			zap.Int("batched", s.assembler.Pending()), zap.Error(err))
		s.failover.Disconnect()
	case errors.As(err, &rejected):
		s.logger.Warn("Store rejected batch, keeping it for retry",
			zap.Int("batched", s.assembler.Pending()), zap.Error(err))
	default:
		s.logger.Error("Can't push events to Redis", zap.Error(err))
	}
}

func (s *Sink) Snapshot() metrics.Snapshot {
	stamp := s.metrics.GetMetricsStamp()
	stamp.QueueSize = s.queue.Len()
	stamp.QueueCapacity = s.queue.Cap()
	return stamp
}

var (
	_ logging.Appender  = (*Sink)(nil)
	_ logging.Lifecycle = (*Sink)(nil)
	_ metrics.Source    = (*Sink)(nil)
)
