// Package serializer linearizes every mutation of the shared store. Jobs are
// queued by priority and applied one at a time, each inside its own database
// transaction, by a single worker goroutine.
package serializer

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/metrics"
	"tradeledger/src/retry"
)

var (
	ErrClosed    = errors.New("serializer closed")
	ErrQueueFull = errors.New("serializer queue full")
)

// Serializer is the single-writer funnel. Create it with New and release it with Close.
type Serializer struct {
	db     *gorm.DB
	policy retry.Policy
	limit  int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  jobHeap
	seq    uint64
	closed bool
	done   chan struct{}
}

// New starts the worker goroutine.
func New(db *gorm.DB, config Config) *Serializer {
	s := &Serializer{
		db:    db,
		limit: config.QueueSize,
		done:  make(chan struct{}),
	}
	s.policy = retry.Policy{
		Attempts:   config.RetryAttempts,
		BaseDelay:  config.RetryBase,
		MaxBackoff: config.RetryMax,
		Retryable:  IsTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.SerializerRetries.Inc()
			logger.WithFields(map[string]interface{}{
				"component": "Serializer",
				"attempt":   attempt,
				"delay":     delay.String(),
			}).WithError(err).Warn("Transient write contention, retrying")
		},
	}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.queue)

	go s.loop()
	return s
}

// Submit queues fn and waits for it to be applied. fn receives the
// transaction handle and must do all of its reads and writes through it.
// When ctx ends before the job starts the job is dropped and ctx.Err() is
// returned; once it started Submit waits for the outcome.
func (s *Serializer) Submit(ctx context.Context, priority Priority, name string, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return fmt.Errorf("serializer: job %q has nil fn", name)
	}

	j := &job{
		priority: priority,
		name:     name,
		fn:       fn,
		result:   make(chan error, 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.limit > 0 && s.queue.Len() >= s.limit {
		s.mu.Unlock()
		return ErrQueueFull
	}
	s.seq++
	j.seq = s.seq
	heap.Push(&s.queue, j)
	metrics.SerializerQueueDepth.Set(float64(s.queue.Len()))
	s.cond.Signal()
	s.mu.Unlock()

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(stateQueued, stateCancelled) {
			return ctx.Err()
		}
		return <-j.result
	}
}

// Close stops accepting jobs, drains the queue and waits for the worker.
func (s *Serializer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Serializer) loop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.queue).(*job)
		metrics.SerializerQueueDepth.Set(float64(s.queue.Len()))
		s.mu.Unlock()

		if !j.state.CompareAndSwap(stateQueued, stateRunning) {
			metrics.SerializerJobs.WithLabelValues(j.priority.String(), "cancelled").Inc()
			continue
		}

		j.result <- s.run(j)
	}
}

func (s *Serializer) run(j *job) error {
	start := time.Now()
	err := retry.Do(context.Background(), s.policy, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(j.fn)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.WithFields(map[string]interface{}{
			"component": "Serializer",
			"job":       j.name,
			"priority":  j.priority.String(),
		}).WithError(err).Warn("Write job failed")
	} else {
		logger.WithFields(map[string]interface{}{
			"component": "Serializer",
			"job":       j.name,
			"priority":  j.priority.String(),
			"took_ms":   time.Since(start).Milliseconds(),
		}).Debug("Write job applied")
	}
	metrics.SerializerJobs.WithLabelValues(j.priority.String(), outcome).Inc()

	return err
}

// IsTransient reports whether err is store contention worth retrying:
// sqlite busy/locked or a postgres serialization failure or deadlock.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// Writer is what components need from the serializer.
type Writer interface {
	Submit(ctx context.Context, priority Priority, name string, fn func(tx *gorm.DB) error) error
}

var _ Writer = (*Serializer)(nil)
