package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/bookingbot/booking/outbox"
	"github.com/m3rciful/bookingbot/core/logger"
	"github.com/m3rciful/bookingbot/core/telegram/netutil"
	"github.com/m3rciful/bookingbot/core/telegram/sender"
)

// Sink receives completed bookings. Delivery is best effort: failures are logged and
// never reported back to the conversation.
type Sink interface {
	Notify(ctx context.Context, b Booking)
}

// Messenger sends plain text to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Enqueuer accepts asynchronous send jobs; *sender.Dispatcher implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job sender.Job) error
}

// Direct delivers to the operator through the async dispatcher with its bounded retry.
type Direct struct {
	messenger Messenger
	queue     Enqueuer
	operator  int64
}

// NewDirect builds a Direct sink. A nil queue sends inline.
func NewDirect(m Messenger, queue Enqueuer, operatorChatID int64) *Direct {
	return &Direct{messenger: m, queue: queue, operator: operatorChatID}
}

// Notify hands the booking text to the dispatcher, or sends it inline without one.
func (d *Direct) Notify(ctx context.Context, b Booking) {
	text := b.Text()
	run := func(ctx context.Context) error {
		return d.messenger.Send(ctx, d.operator, text)
	}
	if d.queue == nil {
		logDelivery(ctx, b, "direct", run(ctx))
		return
	}
	err := d.queue.Enqueue(ctx, sender.Job{
		Action: "notify.operator",
		Run:    run,
		OnDone: func(err error) { logDelivery(ctx, b, "direct", err) },
	})
	if err != nil {
		logDelivery(ctx, b, "direct", err)
	}
}

// DefaultEnqueueTimeout bounds a single outbox insert when OutboxOptions leaves it unset.
const DefaultEnqueueTimeout = 5 * time.Second

// Outbox records bookings in the durable outbox; a separate sender delivers them.
type Outbox struct {
	repo     outbox.Repo
	operator int64
	wake     func()
	timeout  time.Duration
	// fallback receives the booking when the outbox cannot store it in time.
	fallback Sink
}

// OutboxOptions configures an Outbox sink.
type OutboxOptions struct {
	OperatorChatID int64
	// Wake, when set, nudges the sender after each enqueue.
	Wake     func()
	Fallback Sink
	// EnqueueTimeout bounds the insert. Zero means DefaultEnqueueTimeout.
	EnqueueTimeout time.Duration
}

// NewOutbox builds an Outbox sink over repo.
func NewOutbox(repo outbox.Repo, opts OutboxOptions) *Outbox {
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultEnqueueTimeout
	}
	return &Outbox{
		repo:     repo,
		operator: opts.OperatorChatID,
		wake:     opts.Wake,
		timeout:  opts.EnqueueTimeout,
		fallback: opts.Fallback,
	}
}

// Notify stores the booking for the sender and falls back when the insert fails or times out.
func (o *Outbox) Notify(ctx context.Context, b Booking) {
	enqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	id, err := o.repo.Enqueue(enqCtx, o.operator, outbox.KindBooking, b.Text(), b.Reference)
	cancel()
	if err != nil {
		logger.Error(ctx, logger.CompNotify, "notify.enqueue",
			slog.String("status", "fail"),
			slog.String("booking_ref", b.Reference),
			slog.String("error_kind", netutil.Classify(err)),
			logger.Err(err),
		)
		if o.fallback != nil {
			o.fallback.Notify(ctx, b)
		}
		return
	}
	logger.Info(ctx, logger.CompNotify, "notify.enqueue",
		slog.String("status", "ok"),
		slog.String("booking_ref", b.Reference),
		slog.String("outbox_id", id),
	)
	if o.wake != nil {
		o.wake()
	}
}

func logDelivery(ctx context.Context, b Booking, mode string, err error) {
	if err != nil {
		logger.Error(ctx, logger.CompNotify, "notify.deliver",
			slog.String("status", "fail"),
			slog.String("mode", mode),
			slog.String("booking_ref", b.Reference),
			slog.String("err", netutil.Redact(err)),
			slog.String("error_kind", netutil.Classify(err)),
		)
		return
	}
	logger.Info(ctx, logger.CompNotify, "notify.deliver",
		slog.String("status", "ok"),
		slog.String("mode", mode),
		slog.String("booking_ref", b.Reference),
	)
}

// Recorder collects bookings in memory. Useful in tests and dry runs.
type Recorder struct {
	mu       sync.Mutex
	bookings []Booking
}

// Notify appends b to the recorded bookings.
func (r *Recorder) Notify(_ context.Context, b Booking) {
	r.mu.Lock()
	r.bookings = append(r.bookings, b)
	r.mu.Unlock()
}

// Bookings returns a copy of everything recorded so far.
func (r *Recorder) Bookings() []Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Booking(nil), r.bookings...)
}
