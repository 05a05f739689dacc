package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

// GetRestaurant returns one cached restaurant payload by id. The snapshot
// row is addressed with storage.SnapshotID.
func (s *Store) GetRestaurant(ctx context.Context, id int64) (storage.RestaurantRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RestaurantRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RestaurantRecord{}, storage.ErrStoreUnavailable
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, payload, updated_at FROM restaurants WHERE id = ?`,
		id,
	)

	var record storage.RestaurantRecord
	var updatedAt int64
	if err := row.Scan(&record.ID, &record.Payload, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RestaurantRecord{}, storage.ErrNotFound
		}
		return storage.RestaurantRecord{}, fmt.Errorf("get restaurant: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutRestaurant upserts one restaurant payload.
func (s *Store) PutRestaurant(ctx context.Context, record storage.RestaurantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrStoreUnavailable
	}
	if len(record.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO restaurants (id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		record.ID,
		record.Payload,
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put restaurant: %w", err)
	}
	return nil
}

// ReplaceRestaurants writes the collection snapshot row and every contained
// per-entity record in one transaction, so a partial failure leaves no
// half-applied fan-out.
func (s *Store) ReplaceRestaurants(ctx context.Context, snapshot []byte, records []storage.RestaurantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrStoreUnavailable
	}
	if len(snapshot) == 0 {
		return fmt.Errorf("snapshot payload is required")
	}
	now := time.Now().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start fan-out transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const upsert = `INSERT INTO restaurants (id, payload, updated_at) VALUES (?, ?, ?)
	 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

	if _, err := tx.ExecContext(ctx, upsert, storage.SnapshotID, snapshot, toMillis(now)); err != nil {
		return fmt.Errorf("write snapshot row: %w", err)
	}
	for _, record := range records {
		if len(record.Payload) == 0 {
			return fmt.Errorf("payload is required for restaurant %d", record.ID)
		}
		if _, err := tx.ExecContext(ctx, upsert, record.ID, record.Payload, toMillis(now)); err != nil {
			return fmt.Errorf("write restaurant %d: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fan-out transaction: %w", err)
	}
	return nil
}
