package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// maxOpRetries bounds the sync queue retries per operation: after the third
// failed attempt the operation is dropped with an error log.
const maxOpRetries = 3

type OpType string

const (
	OpPushSessions     OpType = "push-sessions"
	OpPushExerciseList OpType = "push-exercise-list"
)

// Operation is a deferred remote push. Payload carries the op-specific data,
// already serialized so the queue stays ignorant of domain types.
type Operation struct {
	Type       OpType          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Retries    int             `json:"retries"`
}

type opQueue struct {
	mu  sync.Mutex
	ops []Operation
}

func newOpQueue() *opQueue {
	return &opQueue{}
}

func (q *opQueue) add(op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

// takeAll removes and returns the current queue contents. The drain operates
// on this snapshot, so ops enqueued mid-drain wait for the next run.
func (q *opQueue) takeAll() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}

// requeue puts not-yet-processed ops back at the front, before anything
// enqueued during the drain, preserving FIFO order.
func (q *opQueue) requeue(ops []Operation) {
	if len(ops) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(ops, q.ops...)
}

func (q *opQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// AddToSyncQueue enqueues a deferred remote push. When online and not
// already syncing, the queue is drained right away.
func (m *Manager) AddToSyncQueue(ctx context.Context, op Operation) {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = m.NowFunc()
	}
	m.queue.add(op)
	m.updateQueueGauge()

	log.Debugf("cache manager, enqueued sync op %s, queue size: %d", op.Type, m.queue.size())

	if m.online.Load() && !m.syncing.Load() {
		if err := m.ProcessSyncQueue(ctx); err != nil {
			log.Errorf("cache manager, process sync queue: %s", err)
		}
	}
}

func (m *Manager) SyncQueueSize() int {
	return m.queue.size()
}

func (m *Manager) IsSyncing() bool {
	return m.syncing.Load()
}

// ProcessSyncQueue drains the queue snapshot taken at run start. Concurrent
// callers share a single drain run. Each failed op is retried on a later run,
// up to maxOpRetries attempts, then dropped.
func (m *Manager) ProcessSyncQueue(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cache.manager.processSyncQueue")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err, _ = m.syncGroup.Do("sync-queue", func() (interface{}, error) {
		return nil, m.drainQueue(ctx)
	})
	return err
}

func (m *Manager) drainQueue(ctx context.Context) (err error) {
	if !m.online.Load() {
		return nil
	}
	if m.syncer == nil {
		return fmt.Errorf("no syncer set")
	}

	m.syncing.Store(true)
	defer m.syncing.Store(false)

	ops := m.queue.takeAll()
	if len(ops) == 0 {
		return nil
	}

	defer m.updateQueueGauge()

	start := time.Now()
	defer func() {
		if m.metricsManager != nil {
			m.metricsManager.HistSheetSyncDuration.Observe(time.Since(start).Seconds())
		}
	}()

	log.Debugf("cache manager, draining sync queue, %d ops", len(ops))

	var failed []Operation
	for i, op := range ops {
		if !m.online.Load() {
			// connectivity lost mid-drain, keep the rest for later
			failed = append(failed, ops[i:]...)
			break
		}

		opErr := m.syncer.ProcessSyncOp(ctx, op)
		if opErr == nil {
			if m.metricsManager != nil {
				m.metricsManager.CounterSyncOpsProcessed.Inc()
			}
			continue
		}

		op.Retries++
		if op.Retries >= maxOpRetries {
			log.Errorf(
				"cache manager, sync op %s dropped after %d attempts, enqueued at %s: %s",
				op.Type, op.Retries, op.EnqueuedAt.Format(time.RFC3339), opErr,
			)
			if m.metricsManager != nil {
				m.metricsManager.CounterSyncOpsDropped.Inc()
			}
			err = multierr.Append(err, fmt.Errorf("op %s dropped: %w", op.Type, opErr))
			continue
		}

		log.Warnf("cache manager, sync op %s failed (attempt %d): %s", op.Type, op.Retries, opErr)
		failed = append(failed, op)
	}

	m.queue.requeue(failed)
	return err
}

func (m *Manager) updateQueueGauge() {
	if m.metricsManager == nil {
		return
	}
	m.metricsManager.GaugeSyncQueueSize.Set(float64(m.queue.size()))
}
