package sqlite

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tutu-network/taskd/internal/domain"
	"github.com/tutu-network/taskd/internal/infra/metrics"
)

// maxBatch caps how many events are written per transaction.
const maxBatch = 256

// Journal records registry events to SQLite from a background writer.
//
// It implements registry.Observer. The observer callbacks run under the
// registry lock, so they only enqueue onto a bounded channel and never
// touch the database. When the buffer is full the event is dropped and
// counted rather than stalling the registry.
type Journal struct {
	db    *DB
	runID string

	mu      sync.RWMutex
	closed  bool
	started bool
	events  chan domain.TaskEvent
	done    chan struct{}
}

// NewJournal creates a journal for one process run. Call Start to launch
// the writer and Close to flush and stop it.
func NewJournal(db *DB, runID string, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Journal{
		db:     db,
		runID:  runID,
		events: make(chan domain.TaskEvent, buffer),
		done:   make(chan struct{}),
	}
}

// RunID returns the run id stamped on every event.
func (j *Journal) RunID() string { return j.runID }

// TaskCreated implements registry.Observer.
func (j *Journal) TaskCreated(t domain.Task) {
	j.enqueue(domain.TaskEvent{
		RunID:  j.runID,
		TaskID: t.ID,
		Kind:   domain.EventCreated,
		Type:   t.Type,
		At:     t.CreatedAt,
	})
}

// TaskCompleted implements registry.Observer.
func (j *Journal) TaskCompleted(t domain.Task, _ bool) {
	j.enqueue(domain.TaskEvent{
		RunID:  j.runID,
		TaskID: t.ID,
		Kind:   domain.EventCompleted,
		Type:   t.Type,
		Result: t.Result,
		At:     t.CompletedAt,
	})
}

func (j *Journal) enqueue(ev domain.TaskEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.events <- ev:
	default:
		metrics.JournalDropped.Inc()
	}
}

// Start launches the background writer. It writes queued events until
// Close is called, flushing what remains. Cancelling ctx stops the writer
// without flushing.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started || j.closed {
		return
	}
	j.started = true
	go j.run(ctx)
}

func (j *Journal) run(ctx context.Context) {
	defer close(j.done)

	if err := j.db.RecordRun(j.runID, time.Now()); err != nil {
		log.Printf("[journal] record run %s: %v", j.runID, err)
	}

	batch := make([]domain.TaskEvent, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-j.events:
			if !ok {
				return
			}
			batch = append(batch[:0], ev)
			open := j.drain(&batch)
			j.write(batch)
			if !open {
				return
			}
		}
	}
}

// drain moves already-buffered events into batch without blocking.
// It reports false once the channel has been closed.
func (j *Journal) drain(batch *[]domain.TaskEvent) bool {
	for len(*batch) < maxBatch {
		select {
		case ev, ok := <-j.events:
			if !ok {
				return false
			}
			*batch = append(*batch, ev)
		default:
			return true
		}
	}
	return true
}

func (j *Journal) write(batch []domain.TaskEvent) {
	if err := j.db.InsertEvents(batch); err != nil {
		metrics.JournalWriteErrors.Add(float64(len(batch)))
		log.Printf("[journal] write %d events: %v", len(batch), err)
	}
}

// Close stops accepting events and waits for the writer to flush.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return domain.ErrJournalClosed
	}
	j.closed = true
	started := j.started
	close(j.events)
	j.mu.Unlock()

	if started {
		<-j.done
	}
	return nil
}

// Ping checks the underlying database.
func (j *Journal) Ping() error {
	return j.db.Ping()
}
