// Package outbox stores operator notifications durably and delivers them with bounded retry.
package outbox

import (
	"context"
	"embed"
	"errors"
	"time"
)

// Migrations holds the schema for the outbox table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Status is the lifecycle state of a message.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusSending  Status = "sending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// KindBooking marks a completed-booking notification.
const KindBooking = "booking"

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("outbox: message not found")

// Message is a durable outgoing message.
type Message struct {
	ID            string     `db:"id"`
	ChatID        int64      `db:"chat_id"`
	Kind          string     `db:"kind"`
	Payload       string     `db:"payload"`
	Status        Status     `db:"status"`
	Attempts      int        `db:"attempts"`
	NextAttemptAt *time.Time `db:"next_attempt_at"`
	DedupeKey     *string    `db:"dedupe_key"`
	LockedAt      *time.Time `db:"locked_at"`
	LastError     string     `db:"last_error"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Repo persists outbox messages.
type Repo interface {
	// Enqueue inserts a queued message. When dedupeKey is non-empty and a pending message
	// with that key exists, the existing id is returned instead.
	Enqueue(ctx context.Context, chatID int64, kind, payload, dedupeKey string) (string, error)
	// ClaimDue marks up to limit queued messages due at now as sending and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id string) error
	// Fail records a failed attempt. A nil next marks the message failed for good;
	// otherwise it is queued again for next.
	Fail(ctx context.Context, id, errMsg string, next *time.Time) error
	// RequeueStale returns messages stuck in sending since before staleBefore to the queue.
	RequeueStale(ctx context.Context, staleBefore time.Time) (int, error)
}
