package batch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

// Batch is a fixed capacity run of encoded records. index is the next free
// slot and stays within [0, capacity].
type Batch struct {
	slots [][]byte
	index int
}

func NewBatch(capacity int) *Batch {
	return &Batch{slots: make([][]byte, capacity)}
}

func (b *Batch) Add(value []byte) bool {
	if b.Full() {
		return false
	}
	b.slots[b.index] = value
	b.index++
	return true
}

func (b *Batch) Len() int { return b.index }
func (b *Batch) Cap() int { return len(b.slots) }
func (b *Batch) Full() bool { return b.index == len(b.slots) }

// Values returns every slot when the batch is full, otherwise the occupied
// prefix. The slice aliases the batch storage.
func (b *Batch) Values() [][]byte {
	if b.Full() {
		return b.slots
	}
	return b.slots[:b.index]
}

func (b *Batch) Reset() {
	clear(b.slots[:b.index])
	b.index = 0
}

// Source is where the assembler drains records from.
type Source interface {
	DrainOne() (logging.LogRecord, bool)
}

// Pusher appends values to the destination list in one call. Failures are
// either *logging.DataRejectionError or *logging.ConnectionError.
type Pusher interface {
	Push(ctx context.Context, values [][]byte) error
}

type Config struct {
	BatchSize      int
	PurgeOnFailure bool
	// FlushPartial pushes whatever is batched at the end of every cycle
	// instead of waiting for the batch to fill.
	FlushPartial bool
}

// Assembler drains the queue into a batch and pushes it. It is driven by the
// single flush worker and is not safe for concurrent use.
type Assembler struct {
	source  Source
	encoder logging.Encoder
	pusher  Pusher
	config  Config
	batch   *Batch
	metrics *metrics.SinkMetrics
	logger  *zap.Logger
}

func NewAssembler(source Source, encoder logging.Encoder, pusher Pusher, config Config,
	m *metrics.SinkMetrics, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = &metrics.SinkMetrics{}
	}
	return &Assembler{
		source:  source,
		encoder: encoder,
		pusher:  pusher,
		config:  config,
		batch:   NewBatch(config.BatchSize),
		metrics: m,
		logger:  logger,
	}
}

func (a *Assembler) Pending() int {
	return a.batch.Len()
}

// Cycle drains the source, pushing every time the batch fills up. With final
// set, or with FlushPartial, the remaining partial batch is pushed as well.
// A connection error stops the cycle and leaves the batch intact. A data
// rejection stops it only when the batch was kept for retry.
func (a *Assembler) Cycle(ctx context.Context, final bool) error {
	if a.batch.Full() {
		if err := a.push(ctx); err != nil && !a.recovered(err) {
			return err
		}
	}

	for {
		record, ok := a.source.DrainOne()
		if !ok {
			break
		}

		value, err := a.encoder.Encode(record)
		if err != nil {
			a.metrics.IncEncodeFailures()
			encErr := &logging.EncodingError{Logger: record.Logger, Err: err}
			a.logger.Error("Dropping record that could not be encoded", zap.Error(encErr))
			continue
		}
		a.batch.Add(value)

		if a.batch.Full() {
			if err := a.push(ctx); err != nil && !a.recovered(err) {
				return err
			}
		}
	}

	if (final || a.config.FlushPartial) && a.batch.Len() > 0 {
		if err := a.push(ctx); err != nil && !a.recovered(err) {
			return err
		}
	}
	return nil
}

// recovered reports whether the cycle can go on after a failed push: only a
// purged batch leaves room for more records.
func (a *Assembler) recovered(err error) bool {
	var rejected *logging.DataRejectionError
	return errors.As(err, &rejected) && a.config.PurgeOnFailure
}

func (a *Assembler) push(ctx context.Context) error {
	n := a.batch.Len()
	if n == 0 {
		return nil
	}
	a.logger.Debug("Pushing batch", zap.Int("events", n))

	err := a.pusher.Push(ctx, a.batch.Values())
	if err == nil {
		a.metrics.AddEventsPushed(n)
		a.batch.Reset()
		return nil
	}

	var rejected *logging.DataRejectionError
	if errors.As(err, &rejected) && a.config.PurgeOnFailure {
		a.logger.Error("Store rejected batch, purging", zap.Int("events", n), zap.Error(err))
		a.metrics.AddDroppedInPush(n)
		a.metrics.IncBatchPurges()
		a.batch.Reset()
	}
	return err
}
