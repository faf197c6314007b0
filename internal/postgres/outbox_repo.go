package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trip-dispatch/internal/ports"
)

// OutboxRepo persists notification commands in the same transaction as the
// state change that produced them.
type OutboxRepo struct{}

// NewOutboxRepo constructs a new OutboxRepo.
func NewOutboxRepo() ports.OutboxRepository {
	return &OutboxRepo{}
}

// Append queues one notification inside the caller's transaction.
func (repo *OutboxRepo) Append(ctx context.Context, n ports.Notification) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_outbox (payload)
		VALUES ($1::jsonb)
	`, string(body))
	return err
}

// PendingBatch locks and returns up to limit undelivered entries. SKIP
// LOCKED lets several dispatcher instances drain concurrently without
// double-sending.
func (repo *OutboxRepo) PendingBatch(ctx context.Context, limit int) ([]ports.OutboxEntry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT id, payload, created_at, attempts
		FROM notification_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox batch: %w", err)
	}
	defer rows.Close()

	var batch []ports.OutboxEntry
	for rows.Next() {
		var entry ports.OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &payload, &entry.CreatedAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Notification); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		batch = append(batch, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return batch, nil
}

// MarkSent stamps a delivered entry.
func (repo *OutboxRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE notification_outbox
		SET sent_at = $1
		WHERE id = $2
	`, at, id)
	return err
}

// MarkFailed records a delivery failure; the entry stays pending for the
// next drain.
func (repo *OutboxRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1,
		    last_error = $1
		WHERE id = $2
	`, reason, id)
	return err
}
