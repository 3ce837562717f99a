package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const messageColumns = `id, chat_id, kind, payload, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

// PostgresRepo keeps the outbox in the outbox_messages table.
type PostgresRepo struct {
	db *sqlx.DB
}

var _ Repo = (*PostgresRepo)(nil)

// NewPostgresRepo wraps an open connection pool.
func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Enqueue(ctx context.Context, chatID int64, kind, payload, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existing string
		err := r.db.GetContext(ctx, &existing,
			`SELECT id FROM outbox_messages WHERE dedupe_key = $1 AND status IN ('queued', 'sending')`,
			dedupeKey,
		)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("outbox dedupe check: %w", err)
		}
	}

	id := uuid.NewString()
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbox_messages (id, chat_id, kind, payload, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5, now(), now())`,
		id, chatID, kind, payload, key,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message: %w", err)
	}
	return id, nil
}

func (r *PostgresRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	var msgs []Message
	err := r.db.SelectContext(ctx, &msgs,
		`UPDATE outbox_messages SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM outbox_messages
		   WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+messageColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages: %w", err)
	}
	return msgs, nil
}

func (r *PostgresRepo) MarkSent(ctx context.Context, id string) error {
	return r.exec(ctx, "mark outbox sent",
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
}

func (r *PostgresRepo) Fail(ctx context.Context, id, errMsg string, next *time.Time) error {
	if next == nil {
		return r.exec(ctx, "fail outbox message",
			`UPDATE outbox_messages SET status = 'failed', attempts = attempts + 1, last_error = $1,
			 next_attempt_at = NULL, locked_at = NULL, updated_at = now() WHERE id = $2`,
			errMsg, id,
		)
	}
	return r.exec(ctx, "fail outbox message",
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = $1,
		 next_attempt_at = $2, locked_at = NULL, updated_at = now() WHERE id = $3`,
		errMsg, *next, id,
	)
}

func (r *PostgresRepo) RequeueStale(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = now()
		 WHERE status = 'sending' AND locked_at < $1`,
		staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *PostgresRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
