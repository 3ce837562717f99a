package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bookingbot/booking/outbox"
	"github.com/m3rciful/bookingbot/core/telegram/sender"
)

type sent struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu   sync.Mutex
	msgs []sent
	err  error
	done chan struct{}
}

func (f *fakeMessenger) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, sent{chatID: chatID, text: text})
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

func sampleBooking() Booking {
	return Booking{
		Reference: "0f8fad5b-d9cb-469f-a165-70867728950e",
		ChatID:    111,
		Service:   "Haircut",
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Slot:      "10:00",
		Name:      "Anna",
		Phone:     "+1000000000",
	}
}

func TestBookingText(t *testing.T) {
	text := sampleBooking().Text()
	for _, want := range []string{"Service: Haircut", "Date: 2024-03-01", "Time: 10:00", "Name: Anna", "Phone: +1000000000", "ref 0f8fad5b"} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Request")
}

func TestBookingTextIntentFlow(t *testing.T) {
	b := Booking{Intent: "Wants a haircut on Friday", Name: "Anna", Phone: "+1"}
	text := b.Text()
	assert.Contains(t, text, "Request: Wants a haircut on Friday")
	assert.NotContains(t, text, "Date:")
	assert.NotContains(t, text, "Service:")
}

func TestDirectInlineSendsToOperator(t *testing.T) {
	m := &fakeMessenger{}
	NewDirect(m, nil, 42).Notify(context.Background(), sampleBooking())
	require.Len(t, m.msgs, 1)
	assert.Equal(t, int64(42), m.msgs[0].chatID)
	assert.Contains(t, m.msgs[0].text, "Haircut")
}

func TestDirectUsesDispatcher(t *testing.T) {
	m := &fakeMessenger{done: make(chan struct{}, 1)}
	d := sender.NewDispatcher(sender.Options{Workers: 1})
	defer d.Close()

	NewDirect(m, d, 42).Notify(context.Background(), sampleBooking())
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not deliver")
	}
}

func TestDirectFailureIsSwallowed(t *testing.T) {
	m := &fakeMessenger{err: errors.New("chat not found")}
	assert.NotPanics(t, func() {
		NewDirect(m, nil, 42).Notify(context.Background(), sampleBooking())
	})
}

type failingRepo struct{ outbox.Repo }

func (failingRepo) Enqueue(context.Context, int64, string, string, string) (string, error) {
	return "", errors.New("db down")
}

func TestOutboxEnqueuesAndWakes(t *testing.T) {
	repo := outbox.NewMemoryRepo()
	woken := 0
	NewOutbox(repo, OutboxOptions{OperatorChatID: 42, Wake: func() { woken++ }}).Notify(context.Background(), sampleBooking())

	msgs, err := repo.ClaimDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ChatID)
	assert.Equal(t, outbox.KindBooking, msgs[0].Kind)
	assert.Contains(t, msgs[0].Payload, "Anna")
	assert.Equal(t, 1, woken)
}

func TestOutboxFallsBackWhenEnqueueFails(t *testing.T) {
	rec := &Recorder{}
	NewOutbox(failingRepo{}, OutboxOptions{OperatorChatID: 42, Fallback: rec}).Notify(context.Background(), sampleBooking())
	require.Len(t, rec.Bookings(), 1)
	assert.Equal(t, "Anna", rec.Bookings()[0].Name)
}

type stalledRepo struct{ outbox.Repo }

func (stalledRepo) Enqueue(ctx context.Context, _ int64, _, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestOutboxEnqueueTimeoutFallsBack(t *testing.T) {
	rec := &Recorder{}
	sink := NewOutbox(stalledRepo{}, OutboxOptions{
		OperatorChatID: 42,
		Fallback:       rec,
		EnqueueTimeout: 50 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		sink.Notify(context.Background(), sampleBooking())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify did not return after the enqueue timeout")
	}
	require.Len(t, rec.Bookings(), 1)
	assert.Equal(t, "Anna", rec.Bookings()[0].Name)
}

func TestOutboxDefaultEnqueueTimeout(t *testing.T) {
	sink := NewOutbox(outbox.NewMemoryRepo(), OutboxOptions{OperatorChatID: 42})
	assert.Equal(t, DefaultEnqueueTimeout, sink.timeout)
}
