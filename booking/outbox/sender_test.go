package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRepo(c *clock) *MemoryRepo {
	r := NewMemoryRepo()
	r.now = c.Now
	return r
}

func TestSenderDeliversQueuedMessage(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := newTestRepo(c)

	var got []Message
	s := NewSender(repo, func(_ context.Context, m Message) error {
		got = append(got, m)
		return nil
	}, SenderOptions{Now: c.Now})

	id, err := repo.Enqueue(ctx, 99, KindBooking, "hello", "ref-1")
	require.NoError(t, err)

	sent, failed := s.RunOnce(ctx)
	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	require.Len(t, got, 1)
	assert.Equal(t, int64(99), got[0].ChatID)
	assert.Equal(t, "hello", got[0].Payload)

	m, ok := repo.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusSent, m.Status)

	sent, _ = s.RunOnce(ctx)
	assert.Zero(t, sent)
}

func TestEnqueueDeduplicatesPendingMessages(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	first, err := repo.Enqueue(ctx, 1, KindBooking, "a", "ref-1")
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, 1, KindBooking, "a", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := repo.Enqueue(ctx, 1, KindBooking, "a", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSenderBacksOffExponentially(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := newTestRepo(c)

	calls := 0
	s := NewSender(repo, func(context.Context, Message) error {
		calls++
		return errors.New("telegram: bad gateway (502)")
	}, SenderOptions{Now: c.Now, MaxAttempts: 5})

	id, err := repo.Enqueue(ctx, 1, KindBooking, "x", "")
	require.NoError(t, err)

	_, failed := s.RunOnce(ctx)
	assert.Equal(t, 1, failed)
	m, _ := repo.Get(id)
	assert.Equal(t, StatusQueued, m.Status)
	assert.Equal(t, 1, m.Attempts)
	require.NotNil(t, m.NextAttemptAt)
	assert.Equal(t, c.t.Add(10*time.Second), *m.NextAttemptAt)
	assert.Contains(t, m.LastError, "bad gateway")

	// Not due yet.
	c.Advance(5 * time.Second)
	s.RunOnce(ctx)
	assert.Equal(t, 1, calls)

	c.Advance(5 * time.Second)
	s.RunOnce(ctx)
	assert.Equal(t, 2, calls)
	m, _ = repo.Get(id)
	assert.Equal(t, c.t.Add(20*time.Second), *m.NextAttemptAt)
}

func TestSenderMarksFailedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := newTestRepo(c)

	s := NewSender(repo, func(context.Context, Message) error {
		return errors.New("chat not found")
	}, SenderOptions{Now: c.Now, MaxAttempts: 2})

	id, err := repo.Enqueue(ctx, 1, KindBooking, "x", "")
	require.NoError(t, err)

	s.RunOnce(ctx)
	c.Advance(time.Minute)
	s.RunOnce(ctx)

	m, _ := repo.Get(id)
	assert.Equal(t, StatusFailed, m.Status)
	assert.Equal(t, 2, m.Attempts)
	assert.Nil(t, m.NextAttemptAt)

	c.Advance(time.Hour)
	sent, failed := s.RunOnce(ctx)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}

func TestSenderBackoffIsCapped(t *testing.T) {
	s := NewSender(NewMemoryRepo(), nil, SenderOptions{BaseBackoff: 10 * time.Second, MaxBackoff: time.Minute})
	assert.Equal(t, 10*time.Second, s.Backoff(0))
	assert.Equal(t, 40*time.Second, s.Backoff(2))
	assert.Equal(t, time.Minute, s.Backoff(3))
	assert.Equal(t, time.Minute, s.Backoff(30))
}

func TestSenderRecoverRequeuesStaleMessages(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := newTestRepo(c)

	id, err := repo.Enqueue(ctx, 1, KindBooking, "x", "")
	require.NoError(t, err)
	claimed, err := repo.ClaimDue(ctx, c.t, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	c.Advance(10 * time.Minute)
	s := NewSender(repo, func(context.Context, Message) error { return nil }, SenderOptions{Now: c.Now})
	require.NoError(t, s.Recover(ctx))

	m, _ := repo.Get(id)
	assert.Equal(t, StatusQueued, m.Status)
	assert.Nil(t, m.LockedAt)
}

func TestSenderRunStopsOnCancel(t *testing.T) {
	repo := NewMemoryRepo()
	delivered := make(chan string, 1)
	s := NewSender(repo, func(_ context.Context, m Message) error {
		delivered <- m.Payload
		return nil
	}, SenderOptions{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	_, err := repo.Enqueue(context.Background(), 1, KindBooking, "woken", "")
	require.NoError(t, err)
	s.Wake()

	select {
	case p := <-delivered:
		assert.Equal(t, "woken", p)
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not trigger a poll")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := Migrations.ReadFile(MigrationsDir + "/000001_outbox_messages.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS outbox_messages")
}
