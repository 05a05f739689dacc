// Package queue durably records writes that cannot be confirmed against the
// origin and replays them in insertion order once delivery succeeds again.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mwslabs/dinesync/internal/platform/id"
	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

// ErrMalformedRecord marks a queued record missing required fields; such
// records are deleted without a delivery attempt.
var ErrMalformedRecord = errors.New("malformed pending record")

// Sender performs one delivery attempt. A nil error means delivered: the
// record may be deleted. An error defers the record for a later drain pass.
type Sender interface {
	Send(ctx context.Context, method, url string, body []byte, idempotencyKey string) error
}

// Events receives write lifecycle notifications for the view layer.
// Implementations must be safe to call from the drain goroutine.
type Events interface {
	WriteQueued()
	WriteConfirmed()
}

// Queue is the durable pending-write queue. A nil store degrades Enqueue to
// a single direct delivery attempt with no durability (used when the local
// store failed to open).
type Queue struct {
	store  storage.PendingStore
	sender Sender
	events Events
	wake   chan struct{}
}

// New returns a queue over store and sender. store and events may be nil.
func New(store storage.PendingStore, sender Sender, events Events) (*Queue, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	return &Queue{
		store:  store,
		sender: sender,
		events: events,
		wake:   make(chan struct{}, 1),
	}, nil
}

// Enqueue persists one write before any delivery attempt, then signals the
// runner to drain. The operation is assigned a client-generated idempotency
// key so a replay after a mid-drain restart can be de-duplicated upstream.
func (q *Queue) Enqueue(ctx context.Context, op storage.PendingOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if q.store == nil {
		// Network-only degradation: one direct attempt, nothing to retry
		// from later.
		return q.sender.Send(ctx, op.Method, op.URL, op.Body, "")
	}

	if op.IdempotencyKey == "" {
		key, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate idempotency key: %w", err)
		}
		op.IdempotencyKey = key
	}

	if _, err := q.store.EnqueuePending(ctx, op); err != nil {
		return fmt.Errorf("persist pending write: %w", err)
	}
	if q.events != nil {
		q.events.WriteQueued()
	}
	q.signal()
	return nil
}

// Drain attempts delivery of queued operations oldest first. Malformed
// records are deleted without a network attempt. The pass stops at the
// first operation whose delivery cannot be confirmed, leaving it queued;
// it resumes on the next trigger. An empty queue ends the pass with nil.
func (q *Queue) Drain(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		op, err := q.store.NextPending(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pending queue: %w", err)
		}

		if err := validate(op); err != nil {
			log.Printf("discarding pending record %d: %v", op.ID, err)
			if err := q.store.DeletePending(ctx, op.ID); err != nil {
				return fmt.Errorf("discard pending record %d: %w", op.ID, err)
			}
			continue
		}

		if err := q.sender.Send(ctx, op.Method, op.URL, op.Body, op.IdempotencyKey); err != nil {
			// Deferred: the record stays queued for the next drain pass.
			return fmt.Errorf("deliver pending record %d: %w", op.ID, err)
		}

		// Delivery is confirmed before deletion; a crash between the two
		// replays the operation, which the idempotency key absorbs.
		if err := q.store.DeletePending(ctx, op.ID); err != nil {
			return fmt.Errorf("dequeue delivered record %d: %w", op.ID, err)
		}
		if q.events != nil {
			q.events.WriteConfirmed()
		}
	}
}

// Pending returns the number of queued operations.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	if q.store == nil {
		return 0, nil
	}
	return q.store.CountPending(ctx)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// validate applies the bad-record rule: a record needs a url and a method,
// and a POST needs a body. A favorite PUT legitimately carries no body (its
// state rides in the query string), so PUT is not body-checked.
func validate(op storage.PendingOp) error {
	if strings.TrimSpace(op.URL) == "" || strings.TrimSpace(op.Method) == "" {
		return fmt.Errorf("%w: missing url or method", ErrMalformedRecord)
	}
	if op.Method == http.MethodPost && op.Body == nil {
		return fmt.Errorf("%w: %s without body", ErrMalformedRecord, op.Method)
	}
	return nil
}
