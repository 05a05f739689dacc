package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

// GetReviewsByRestaurant returns all cached reviews for one restaurant via
// the restaurant_id index, oldest first.
func (s *Store) GetReviewsByRestaurant(ctx context.Context, restaurantID int64) ([]storage.ReviewRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, storage.ErrStoreUnavailable
	}
	if restaurantID <= 0 {
		return nil, fmt.Errorf("restaurant id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, restaurant_id, payload, updated_at
		   FROM reviews
		  WHERE restaurant_id = ?
		  ORDER BY id ASC`,
		restaurantID,
	)
	if err != nil {
		return nil, fmt.Errorf("get reviews by restaurant: %w", err)
	}
	defer rows.Close()

	var records []storage.ReviewRecord
	for rows.Next() {
		var record storage.ReviewRecord
		var updatedAt int64
		if err := rows.Scan(&record.ID, &record.RestaurantID, &record.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("get reviews by restaurant: %w", err)
		}
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get reviews by restaurant: %w", err)
	}
	return records, nil
}

// PutReview upserts one review payload.
func (s *Store) PutReview(ctx context.Context, record storage.ReviewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrStoreUnavailable
	}
	if record.RestaurantID <= 0 {
		return fmt.Errorf("restaurant id is required")
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
		`INSERT INTO reviews (id, restaurant_id, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET restaurant_id = excluded.restaurant_id,
		        payload = excluded.payload, updated_at = excluded.updated_at`,
		record.ID,
		record.RestaurantID,
		record.Payload,
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put review: %w", err)
	}
	return nil
}

// ReplaceReviews writes all fetched reviews for one restaurant in one
// transaction, replacing whatever was cached for it before.
func (s *Store) ReplaceReviews(ctx context.Context, restaurantID int64, records []storage.ReviewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrStoreUnavailable
	}
	if restaurantID <= 0 {
		return fmt.Errorf("restaurant id is required")
	}
	now := time.Now().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start review transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE restaurant_id = ?`, restaurantID); err != nil {
		return fmt.Errorf("clear cached reviews: %w", err)
	}
	for _, record := range records {
		if len(record.Payload) == 0 {
			return fmt.Errorf("payload is required for review %d", record.ID)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO reviews (id, restaurant_id, payload, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET restaurant_id = excluded.restaurant_id,
			        payload = excluded.payload, updated_at = excluded.updated_at`,
			record.ID,
			restaurantID,
			record.Payload,
			toMillis(now),
		); err != nil {
			return fmt.Errorf("write review %d: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review transaction: %w", err)
	}
	return nil
}
