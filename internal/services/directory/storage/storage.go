// Package storage defines persistence contracts for the directory cache.
//
// Records are stored as JSON payloads keyed the way the origin API keys
// them, so the cache and the interception proxy can serve stored bytes
// without re-encoding.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable indicates the local store could not be opened or
	// a transaction could not start; callers degrade to network-only mode.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SnapshotID keys the reserved row holding the entire restaurant collection
// as one JSON array.
const SnapshotID int64 = -1

// RestaurantRecord is one cached restaurant payload.
type RestaurantRecord struct {
	ID        int64
	Payload   []byte
	UpdatedAt time.Time
}

// ReviewRecord is one cached review payload, keyed by review id and indexed
// by the restaurant it belongs to.
type ReviewRecord struct {
	ID           int64
	RestaurantID int64
	Payload      []byte
	UpdatedAt    time.Time
}

// PendingOp is one durably queued write. Body is nil when the queued method
// carries no request body.
type PendingOp struct {
	ID             int64
	URL            string
	Method         string
	Body           []byte
	IdempotencyKey string
	CreatedAt      time.Time
}

// RestaurantStore persists restaurant payloads and the collection snapshot.
type RestaurantStore interface {
	GetRestaurant(ctx context.Context, id int64) (RestaurantRecord, error)
	PutRestaurant(ctx context.Context, record RestaurantRecord) error
	// ReplaceRestaurants writes the collection snapshot and every contained
	// per-entity record in a single transaction (the fan-out rule).
	ReplaceRestaurants(ctx context.Context, snapshot []byte, records []RestaurantRecord) error
}

// ReviewStore persists review payloads with a secondary index on restaurant.
type ReviewStore interface {
	GetReviewsByRestaurant(ctx context.Context, restaurantID int64) ([]ReviewRecord, error)
	PutReview(ctx context.Context, record ReviewRecord) error
	// ReplaceReviews writes all fetched reviews for one restaurant in a
	// single transaction.
	ReplaceReviews(ctx context.Context, restaurantID int64, records []ReviewRecord) error
}

// PendingStore persists queued writes in insertion order.
type PendingStore interface {
	EnqueuePending(ctx context.Context, op PendingOp) (int64, error)
	// NextPending returns the oldest queued operation, or ErrNotFound when
	// the queue is empty.
	NextPending(ctx context.Context) (PendingOp, error)
	DeletePending(ctx context.Context, id int64) error
	CountPending(ctx context.Context) (int, error)
}

// Store is the full persistence surface shared by the cache, the queue and
// the interception proxy.
type Store interface {
	RestaurantStore
	ReviewStore
	PendingStore
	Close() error
}
