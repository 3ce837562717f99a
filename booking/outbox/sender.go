package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/bookingbot/core/logger"
	"github.com/m3rciful/bookingbot/core/telegram/netutil"
)

// SendFunc performs the actual delivery of msg.
type SendFunc func(ctx context.Context, msg Message) error

// SenderOptions configures a Sender.
type SenderOptions struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts caps delivery attempts; the message is marked failed after the last one.
	MaxAttempts int
	// BaseBackoff is the delay after the first failure; it doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// StaleAfter requeues messages left in sending longer than this, e.g. after a crash.
	StaleAfter  time.Duration
	SendTimeout time.Duration
	Now         func() time.Time
}

// Sender claims due messages and delivers them.
type Sender struct {
	repo Repo
	send SendFunc
	opts SenderOptions
	wake chan struct{}
}

// NewSender builds a Sender with defaults for zero options.
func NewSender(repo Repo, send SendFunc, opts SenderOptions) *Sender {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 10 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sender{repo: repo, send: send, opts: opts, wake: make(chan struct{}, 1)}
}

// Wake asks the running loop to poll without waiting for the next tick.
func (s *Sender) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Backoff returns the delay before the next attempt after attempts failures.
func (s *Sender) Backoff(attempts int) time.Duration {
	d := s.opts.BaseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return d
}

// Recover requeues messages stuck in sending. Call once before Run.
func (s *Sender) Recover(ctx context.Context) error {
	n, err := s.repo.RequeueStale(ctx, s.opts.Now().Add(-s.opts.StaleAfter))
	if err != nil {
		logger.Error(ctx, logger.CompOutbox, "outbox.recover",
			slog.String("status", "fail"),
			logger.Err(err),
		)
		return err
	}
	if n > 0 {
		logger.Info(ctx, logger.CompOutbox, "outbox.recover",
			slog.String("status", "ok"),
			slog.Int("count", n),
		)
	}
	return nil
}

// Run polls until ctx is done.
func (s *Sender) Run(ctx context.Context) {
	logger.Info(ctx, logger.CompOutbox, "outbox.start",
		slog.String("status", "ok"),
		slog.Duration("poll_interval", s.opts.PollInterval),
		slog.Int("max_attempts", s.opts.MaxAttempts),
	)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(logger.Background(), logger.CompOutbox, "outbox.stop", slog.String("status", "ok"))
			return
		case <-ticker.C:
		case <-s.wake:
		}
		s.RunOnce(ctx)
	}
}

// RunOnce claims one batch and attempts each message. It returns the number delivered
// and the number that failed this round.
func (s *Sender) RunOnce(ctx context.Context) (sent, failed int) {
	now := s.opts.Now()
	msgs, err := s.repo.ClaimDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error(ctx, logger.CompOutbox, "outbox.claim",
				slog.String("status", "fail"),
				logger.Err(err),
			)
		}
		return 0, 0
	}
	for _, msg := range msgs {
		if s.deliver(ctx, msg, now) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func (s *Sender) deliver(ctx context.Context, msg Message, now time.Time) bool {
	mctx := logger.WithChatID(ctx, msg.ChatID)
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(mctx, s.opts.SendTimeout)
	err := s.send(sendCtx, msg)
	cancel()

	if err == nil {
		if mErr := s.repo.MarkSent(ctx, msg.ID); mErr != nil {
			logger.Error(mctx, logger.CompOutbox, "outbox.mark_sent",
				slog.String("status", "fail"),
				slog.String("outbox_id", msg.ID),
				logger.Err(mErr),
			)
		}
		logger.Info(mctx, logger.CompOutbox, "outbox.deliver",
			slog.String("status", "ok"),
			slog.String("outbox_id", msg.ID),
			slog.Int("attempts", msg.Attempts+1),
			slog.Duration("duration", logger.Took(start)),
		)
		return true
	}

	attempts := msg.Attempts + 1
	var next *time.Time
	status := "retry"
	if attempts < s.opts.MaxAttempts {
		at := now.Add(s.Backoff(msg.Attempts))
		next = &at
	} else {
		status = "fail"
	}
	if fErr := s.repo.Fail(ctx, msg.ID, netutil.Redact(err), next); fErr != nil {
		logger.Error(mctx, logger.CompOutbox, "outbox.record_failure",
			slog.String("status", "fail"),
			slog.String("outbox_id", msg.ID),
			logger.Err(fErr),
		)
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outbox_id", msg.ID),
		slog.Int("attempts", attempts),
		slog.String("err", netutil.Redact(err)),
		slog.String("error_kind", netutil.Classify(err)),
	}
	if next != nil {
		attrs = append(attrs, slog.Duration("backoff", next.Sub(now)))
		logger.Warn(mctx, logger.CompOutbox, "outbox.deliver", attrs...)
	} else {
		logger.Error(mctx, logger.CompOutbox, "outbox.deliver", attrs...)
	}
	return false
}
