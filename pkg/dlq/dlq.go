// Package dlq implements the Dead-Letter Queue (C8): terminal storage for
// tasks that exhausted retries, with TTL purge and an optional auto-retry
// loop that backs off exponentially and respects the circuit breaker,
// grounded on the reference repo's Store-backed, observer-driven
// subsystems (checkpoint manager, rate limiter) generalised to spec.md
// §4.7's add/retry/purge contract.
package dlq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/storage"
)

// DefaultTTL is the default dead-letter retention window (spec.md §6.5
// retention.dlqMs).
const DefaultTTL = 24 * time.Hour

// EventKind identifies a DLQ observer event.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRetried EventKind = "retried"
	EventPurged  EventKind = "purged"
)

// Observer receives best-effort DLQ lifecycle notifications.
type Observer func(kind EventKind, entry storage.DeadLetterRecord)

// Queue is the Dead-Letter Queue (C8).
type Queue struct {
	storage   storage.Adapter
	ttl       time.Duration
	observers []Observer
	mu        sync.Mutex
}

// NewQueue creates a DLQ backed by a storage adapter with the given TTL
// (DefaultTTL if zero).
func NewQueue(store storage.Adapter, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{storage: store, ttl: ttl}
}

// OnEvent registers a best-effort observer.
func (q *Queue) OnEvent(obs Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, obs)
}

func (q *Queue) notify(kind EventKind, entry storage.DeadLetterRecord) {
	q.mu.Lock()
	obs := append([]Observer(nil), q.observers...)
	q.mu.Unlock()
	for _, o := range obs {
		func() {
			defer func() { recover() }()
			o(kind, entry)
		}()
	}
}

// Add enrols a terminally-failed task, per spec.md §3.8: added when a
// task exhausts retries.
func (q *Queue) Add(ctx context.Context, t storage.TaskRecord, failErr error, attempts int) (storage.DeadLetterRecord, error) {
	now := time.Now()
	entry := storage.DeadLetterRecord{
		ID:            uuid.New().String(),
		Task:          t,
		Error:         failErr.Error(),
		Attempts:      attempts,
		FirstFailedAt: now,
		LastFailedAt:  now,
		ExpiresAt:     now.Add(q.ttl),
		SchemaVersion: storage.SchemaVersion,
	}
	if err := q.storage.SaveDeadLetter(ctx, entry); err != nil {
		return storage.DeadLetterRecord{}, err
	}
	q.notify(EventAdded, entry)
	return entry, nil
}

// ListEntries returns all entries currently held.
func (q *Queue) ListEntries(ctx context.Context) ([]storage.DeadLetterRecord, error) {
	return q.storage.ListDeadLetters(ctx)
}

// Remove deletes an entry without retrying it.
func (q *Queue) Remove(ctx context.Context, entryID string) error {
	return q.storage.DeleteDeadLetter(ctx, entryID)
}

// Purge removes every entry whose TTL has elapsed, notifying observers per
// removed entry.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	entries, err := q.storage.ListDeadLetters(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	n := 0
	for _, e := range entries {
		if !now.Before(e.ExpiresAt) {
			if err := q.storage.DeleteDeadLetter(ctx, e.ID); err != nil {
				return n, err
			}
			q.notify(EventPurged, e)
			n++
		}
	}
	return n, nil
}

// Retry atomically removes the entry and returns a fresh task record
// whose status is reset to pending, result/completedAt cleared, and
// metadata.retryCount incremented, per spec.md §4.7 and end-to-end
// scenario 6 in §8.
func (q *Queue) Retry(ctx context.Context, entryID string) (storage.TaskRecord, error) {
	entry, ok, err := q.storage.LoadDeadLetter(ctx, entryID)
	if err != nil {
		return storage.TaskRecord{}, err
	}
	if !ok {
		return storage.TaskRecord{}, fmt.Errorf("dead-letter entry %q not found", entryID)
	}
	if err := q.storage.DeleteDeadLetter(ctx, entryID); err != nil {
		return storage.TaskRecord{}, err
	}

	retried := entry.Task
	retried.Status = "pending"
	retried.Result = nil
	retried.CompletedAt = nil
	if retried.Metadata == nil {
		retried.Metadata = map[string]any{}
	}
	rc := 0
	switch v := retried.Metadata["retryCount"].(type) {
	case int:
		rc = v
	case float64: // JSON-decoded by the SQL and key-value adapters
		rc = int(v)
	}
	retried.Metadata["retryCount"] = rc + 1

	if err := q.storage.SaveTask(ctx, retried); err != nil {
		return storage.TaskRecord{}, err
	}
	q.notify(EventRetried, entry)
	return retried, nil
}

// backoff computes the exponential back-off delay for an entry's next
// auto-retry attempt from its attempt count (one second, doubled per
// attempt), capped at one hour. sweep waits that long after lastFailedAt;
// firstFailedAt does not enter the delay.
func backoff(entry storage.DeadLetterRecord) time.Duration {
	base := time.Second
	d := base << uint(min(entry.Attempts, 10))
	maxDelay := time.Hour
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// AutoRetryer periodically re-queues DLQ entries whose back-off delay has
// elapsed, respecting the circuit breaker's open state (spec.md §5
// back-pressure policy): an entry for an agent whose circuit is open is
// skipped until the breaker allows it again.
type AutoRetryer struct {
	queue   *Queue
	breaker *circuit.Breaker
	onRetry func(storage.TaskRecord)
	stop    chan struct{}
}

// NewAutoRetryer creates an auto-retry loop. onRetry is invoked with the
// freshly-reset task; the caller is responsible for re-submitting it to
// the orchestrator.
func NewAutoRetryer(q *Queue, breaker *circuit.Breaker, onRetry func(storage.TaskRecord)) *AutoRetryer {
	return &AutoRetryer{queue: q, breaker: breaker, onRetry: onRetry, stop: make(chan struct{})}
}

// Run polls every tick until Stop is called, re-queuing eligible entries.
func (a *AutoRetryer) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *AutoRetryer) sweep(ctx context.Context) {
	entries, err := a.queue.ListEntries(ctx)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if now.Before(e.LastFailedAt.Add(backoff(e))) {
			continue
		}
		if a.breaker != nil && !a.breaker.IsAllowed(e.Task.Type) {
			continue
		}
		task, err := a.queue.Retry(ctx, e.ID)
		if err != nil {
			continue
		}
		if a.onRetry != nil {
			a.onRetry(task)
		}
	}
}

// Stop ends the auto-retry loop.
func (a *AutoRetryer) Stop() {
	close(a.stop)
}
