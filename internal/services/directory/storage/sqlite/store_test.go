package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

func TestOpenValidatesPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotentAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening at the same schema version must not duplicate DDL or error.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close after reopen: %v", err)
	}
}

func TestPutAndGetRestaurant(t *testing.T) {
	store := openTempStore(t)

	payload := []byte(`{"id":5,"name":"Casa Enrique"}`)
	if err := store.PutRestaurant(context.Background(), storage.RestaurantRecord{ID: 5, Payload: payload}); err != nil {
		t.Fatalf("put restaurant: %v", err)
	}

	record, err := store.GetRestaurant(context.Background(), 5)
	if err != nil {
		t.Fatalf("get restaurant: %v", err)
	}
	if string(record.Payload) != string(payload) {
		t.Fatalf("payload = %s, want %s", record.Payload, payload)
	}
	if record.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}
}

func TestGetRestaurantMissing(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.GetRestaurant(context.Background(), 404); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceRestaurantsFansOut(t *testing.T) {
	store := openTempStore(t)

	snapshot := []byte(`[{"id":1},{"id":2}]`)
	records := []storage.RestaurantRecord{
		{ID: 1, Payload: []byte(`{"id":1}`)},
		{ID: 2, Payload: []byte(`{"id":2}`)},
	}
	if err := store.ReplaceRestaurants(context.Background(), snapshot, records); err != nil {
		t.Fatalf("replace restaurants: %v", err)
	}

	got, err := store.GetRestaurant(context.Background(), storage.SnapshotID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if string(got.Payload) != string(snapshot) {
		t.Fatalf("snapshot payload = %s, want %s", got.Payload, snapshot)
	}

	// Every entity in the snapshot must be independently retrievable.
	for _, record := range records {
		got, err := store.GetRestaurant(context.Background(), record.ID)
		if err != nil {
			t.Fatalf("get restaurant %d after fan-out: %v", record.ID, err)
		}
		if string(got.Payload) != string(record.Payload) {
			t.Fatalf("restaurant %d payload = %s, want %s", record.ID, got.Payload, record.Payload)
		}
	}
}

func TestReplaceRestaurantsRollsBackOnBadRecord(t *testing.T) {
	store := openTempStore(t)

	err := store.ReplaceRestaurants(
		context.Background(),
		[]byte(`[{"id":1}]`),
		[]storage.RestaurantRecord{{ID: 1}},
	)
	if err == nil {
		t.Fatal("expected error for empty entity payload")
	}

	if _, err := store.GetRestaurant(context.Background(), storage.SnapshotID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected snapshot write to be rolled back, got %v", err)
	}
}

func TestReviewsRoundTripByIndex(t *testing.T) {
	store := openTempStore(t)

	records := []storage.ReviewRecord{
		{ID: 10, RestaurantID: 5, Payload: []byte(`{"id":10}`)},
		{ID: 11, RestaurantID: 5, Payload: []byte(`{"id":11}`)},
	}
	if err := store.ReplaceReviews(context.Background(), 5, records); err != nil {
		t.Fatalf("replace reviews: %v", err)
	}
	if err := store.PutReview(context.Background(), storage.ReviewRecord{
		ID: 12, RestaurantID: 7, Payload: []byte(`{"id":12}`),
	}); err != nil {
		t.Fatalf("put review: %v", err)
	}

	got, err := store.GetReviewsByRestaurant(context.Background(), 5)
	if err != nil {
		t.Fatalf("get reviews: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reviews len = %d, want 2", len(got))
	}
	if got[0].ID != 10 || got[1].ID != 11 {
		t.Fatalf("review order = %d,%d, want 10,11", got[0].ID, got[1].ID)
	}

	other, err := store.GetReviewsByRestaurant(context.Background(), 7)
	if err != nil {
		t.Fatalf("get other reviews: %v", err)
	}
	if len(other) != 1 || other[0].ID != 12 {
		t.Fatalf("expected only review 12 for restaurant 7, got %v", other)
	}
}

func TestReplaceReviewsDropsStaleRecords(t *testing.T) {
	store := openTempStore(t)

	if err := store.ReplaceReviews(context.Background(), 5, []storage.ReviewRecord{
		{ID: 10, RestaurantID: 5, Payload: []byte(`{"id":10}`)},
	}); err != nil {
		t.Fatalf("seed reviews: %v", err)
	}
	if err := store.ReplaceReviews(context.Background(), 5, []storage.ReviewRecord{
		{ID: 20, RestaurantID: 5, Payload: []byte(`{"id":20}`)},
	}); err != nil {
		t.Fatalf("replace reviews: %v", err)
	}

	got, err := store.GetReviewsByRestaurant(context.Background(), 5)
	if err != nil {
		t.Fatalf("get reviews: %v", err)
	}
	if len(got) != 1 || got[0].ID != 20 {
		t.Fatalf("expected only review 20 after replace, got %v", got)
	}
}

func TestPendingQueueOrderAndDelete(t *testing.T) {
	store := openTempStore(t)

	first, err := store.EnqueuePending(context.Background(), storage.PendingOp{
		URL: "http://api/restaurants/1/?is_favorite=true", Method: "PUT",
	})
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	second, err := store.EnqueuePending(context.Background(), storage.PendingOp{
		URL: "http://api/reviews", Method: "POST", Body: []byte(`{"rating":5}`),
	})
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if second <= first {
		t.Fatalf("expected auto-incrementing ids, got %d then %d", first, second)
	}

	op, err := store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if op.ID != first {
		t.Fatalf("next pending id = %d, want oldest %d", op.ID, first)
	}
	if op.Body != nil {
		t.Fatalf("expected nil body for bodyless PUT, got %s", op.Body)
	}

	if err := store.DeletePending(context.Background(), first); err != nil {
		t.Fatalf("delete pending: %v", err)
	}

	op, err = store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("next pending after delete: %v", err)
	}
	if op.ID != second {
		t.Fatalf("next pending id = %d, want %d", op.ID, second)
	}
	if string(op.Body) != `{"rating":5}` {
		t.Fatalf("body = %s, want stored body", op.Body)
	}

	count, err := store.CountPending(context.Background())
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestNextPendingEmptyQueue(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.NextPending(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty queue, got %v", err)
	}
}

func TestDeletePendingMissing(t *testing.T) {
	store := openTempStore(t)

	if err := store.DeletePending(context.Background(), 99); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
