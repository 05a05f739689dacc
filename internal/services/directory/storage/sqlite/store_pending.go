package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

// EnqueuePending persists one queued write and returns its assigned id.
// The record is stored before any delivery attempt is made.
func (s *Store) EnqueuePending(ctx context.Context, op storage.PendingOp) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, storage.ErrStoreUnavailable
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var body any
	if op.Body != nil {
		body = string(op.Body)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pending (url, method, body, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(op.URL),
		strings.TrimSpace(op.Method),
		body,
		op.IdempotencyKey,
		toMillis(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue pending: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue pending id: %w", err)
	}
	return id, nil
}

// NextPending returns the oldest queued operation. It is the cursor step of
// a drain pass; callers delete the record once delivery is confirmed.
func (s *Store) NextPending(ctx context.Context) (storage.PendingOp, error) {
	if err := ctx.Err(); err != nil {
		return storage.PendingOp{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PendingOp{}, storage.ErrStoreUnavailable
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, url, method, body, idempotency_key, created_at
		   FROM pending
		  ORDER BY id ASC
		  LIMIT 1`,
	)

	var op storage.PendingOp
	var body sql.NullString
	var createdAt int64
	if err := row.Scan(&op.ID, &op.URL, &op.Method, &body, &op.IdempotencyKey, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingOp{}, storage.ErrNotFound
		}
		return storage.PendingOp{}, fmt.Errorf("next pending: %w", err)
	}
	if body.Valid {
		op.Body = []byte(body.String)
	}
	op.CreatedAt = fromMillis(createdAt)
	return op, nil
}

// DeletePending removes one queued operation by id.
func (s *Store) DeletePending(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrStoreUnavailable
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pending rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountPending returns the number of queued operations.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, storage.ErrStoreUnavailable
	}

	var count int
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}
