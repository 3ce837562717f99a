package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a process-local Repo used when no database is configured.
// Messages do not survive a restart.
type MemoryRepo struct {
	mu   sync.Mutex
	msgs map[string]*Message
	now  func() time.Time
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo returns an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{msgs: make(map[string]*Message), now: time.Now}
}

func (r *MemoryRepo) Enqueue(_ context.Context, chatID int64, kind, payload, dedupeKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range r.msgs {
			if m.DedupeKey != nil && *m.DedupeKey == dedupeKey && pending(m.Status) {
				return m.ID, nil
			}
		}
	}
	now := r.now()
	m := &Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Kind:      kind,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if dedupeKey != "" {
		m.DedupeKey = &dedupeKey
	}
	r.msgs[m.ID] = m
	return m.ID, nil
}

func (r *MemoryRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*Message, 0)
	for _, m := range r.msgs {
		if m.Status == StatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Message, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = StatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *MemoryRepo) MarkSent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = StatusSent
	m.LockedAt = nil
	m.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepo) Fail(_ context.Context, id, errMsg string, next *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return ErrNotFound
	}
	m.Attempts++
	m.LastError = errMsg
	m.LockedAt = nil
	m.UpdatedAt = r.now()
	if next == nil {
		m.Status = StatusFailed
		m.NextAttemptAt = nil
		return nil
	}
	at := *next
	m.Status = StatusQueued
	m.NextAttemptAt = &at
	return nil
}

func (r *MemoryRepo) RequeueStale(_ context.Context, staleBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Status == StatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = StatusQueued
			m.LockedAt = nil
			m.UpdatedAt = r.now()
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the message with id.
func (r *MemoryRepo) Get(id string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

func pending(s Status) bool {
	return s == StatusQueued || s == StatusSending
}
