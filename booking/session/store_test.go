package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bookingbot/booking/scheduling"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStoreGetOrCreate(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(Options{Now: fixedClock(now)})

	_, ok := s.Get(1)
	assert.False(t, ok)

	sess, created := s.GetOrCreate(1)
	require.True(t, created)
	assert.Equal(t, int64(1), sess.ChatID)
	assert.Equal(t, AwaitingServiceSelection, sess.State)
	assert.Equal(t, now, sess.StartedAt)

	again, created := s.GetOrCreate(1)
	assert.False(t, created)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, s.Len())

	s.Delete(1)
	_, ok = s.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	s.Delete(1)
}

func TestStoreStartUsesInitialState(t *testing.T) {
	s := NewStore(Options{})
	sess, created := s.Start(5, AwaitingIntent)
	require.True(t, created)
	assert.Equal(t, AwaitingIntent, sess.State)
}

func TestSessionAdvanceIsMonotonic(t *testing.T) {
	now := time.Now()
	sess := &Session{State: AwaitingDate}
	assert.False(t, sess.Advance(AwaitingDate, now))
	assert.False(t, sess.Advance(AwaitingServiceSelection, now))
	assert.True(t, sess.Advance(AwaitingTime, now))
	assert.Equal(t, AwaitingTime, sess.State)
	assert.Equal(t, now, sess.UpdatedAt)
}

func TestSessionLookups(t *testing.T) {
	sess := &Session{
		Catalog: []scheduling.Service{{ID: 1, Name: "Haircut"}, {ID: 2, Name: "Manicure"}},
		Slots:   []scheduling.Slot{{Start: "10:00"}},
	}
	svc, ok := sess.FindService("Manicure")
	require.True(t, ok)
	assert.Equal(t, int64(2), svc.ID)
	_, ok = sess.FindService("manicure")
	assert.False(t, ok)
	assert.True(t, sess.Offered("10:00"))
	assert.False(t, sess.Offered("11:00"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_service", AwaitingServiceSelection.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "idle", State(0).String())
}

func TestStoreSweepExpiresIdleSessions(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	s := NewStore(Options{TTL: 30 * time.Minute, Now: func() time.Time { return now }})

	s.GetOrCreate(1)
	now = start.Add(20 * time.Minute)
	fresh, _ := s.GetOrCreate(2)
	fresh.Touch(now)

	assert.Equal(t, 1, s.Sweep(start.Add(45*time.Minute)))
	_, ok := s.Get(1)
	assert.False(t, ok)
	_, ok = s.Get(2)
	assert.True(t, ok)
}

func TestStoreSweepSkipsLockedChats(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(Options{TTL: time.Minute, Now: fixedClock(start)})
	s.GetOrCreate(1)

	unlock := s.Lock(1)
	assert.Equal(t, 0, s.Sweep(start.Add(time.Hour)))
	unlock()
	unlock()
	assert.Equal(t, 1, s.Sweep(start.Add(time.Hour)))
}

func TestStoreSweepDisabledWithoutTTL(t *testing.T) {
	s := NewStore(Options{})
	s.GetOrCreate(1)
	assert.Equal(t, 0, s.Sweep(time.Now().Add(24*time.Hour)))
}

func TestStoreLockSerializesSameChat(t *testing.T) {
	s := NewStore(Options{})
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock(7)
			defer unlock()
			sess, _ := s.GetOrCreate(7)
			// Read-modify-write without atomics; the race detector and the final count
			// catch missing serialization.
			sess.Name += "x"
		}()
	}
	wg.Wait()

	sess, ok := s.Get(7)
	require.True(t, ok)
	assert.Len(t, sess.Name, workers)
}

func TestStoreLockDoesNotBlockOtherChats(t *testing.T) {
	s := NewStore(Options{})
	unlock := s.Lock(111)
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := s.Lock(222)
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for chat 222 blocked behind chat 111")
	}
}
