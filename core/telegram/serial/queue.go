// Package serial runs work in arrival order per key while keeping different keys concurrent.
//
// Telegram delivers updates for all chats through one poller. Handlers for the same chat must
// observe messages in the order they arrived, but one slow conversation must not stall others.
// Queue keeps a FIFO lane per key with at most one worker goroutine draining it; the worker
// exits once its lane is empty.
package serial

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
)

var (
	// ErrClosed is returned by Submit after Close was called.
	ErrClosed = errors.New("serial: queue closed")
	// ErrBacklogFull is returned when a key already has MaxPending jobs waiting.
	ErrBacklogFull = errors.New("serial: backlog full")
)

// Options tunes a Queue.
type Options struct {
	// MaxPending bounds the jobs waiting per key. Zero means 32.
	MaxPending int
}

type lane struct {
	jobs []func()
}

// Queue serializes jobs per key.
type Queue struct {
	maxPending int

	mu     sync.Mutex
	lanes  map[int64]*lane
	closed bool
	wg     sync.WaitGroup
}

// New builds an empty queue.
func New(opts Options) *Queue {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 32
	}
	return &Queue{
		maxPending: opts.MaxPending,
		lanes:      make(map[int64]*lane),
	}
}

// Submit appends job to the lane of key, starting a worker when the lane was idle.
func (q *Queue) Submit(key int64, job func()) error {
	if job == nil {
		return errors.New("serial: nil job")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l
		q.wg.Add(1)
		go q.drain(key, l)
	}
	if len(l.jobs) >= q.maxPending {
		return ErrBacklogFull
	}
	l.jobs = append(l.jobs, job)
	return nil
}

func (q *Queue) drain(key int64, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.jobs) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		}
		job := l.jobs[0]
		l.jobs[0] = nil
		l.jobs = l.jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// Active returns the number of keys with a running worker.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close rejects new jobs and waits until queued jobs finish or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// KeyOf picks the serialization key for an update: the chat, falling back to the sender.
func KeyOf(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil && chat.ID != 0 {
		return chat.ID
	}
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}

// Middleware hands each update to q so that handlers for one chat run one at a time in
// arrival order. Updates without a chat or sender run inline.
// onError receives handler errors, since they can no longer be returned to the poller.
func Middleware(q *Queue, onError func(error, tele.Context)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			key := KeyOf(c)
			if key == 0 {
				return next(c)
			}
			err := q.Submit(key, func() {
				if err := next(c); err != nil && onError != nil {
					onError(err, c)
				}
			})
			if err != nil {
				logger.TG.Warn("update dropped",
					slog.String("event", "tg.serial"),
					slog.String("status", "rate_limited"),
					slog.Int64("chat_id", key),
					slog.Int("update_id", c.Update().ID),
					logger.Err(err),
				)
			}
			return nil
		}
	}
}
