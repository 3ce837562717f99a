// Package conversation drives the booking dialog: one state machine turn per inbound message.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/bookingbot/booking/notify"
	"github.com/m3rciful/bookingbot/booking/scheduling"
	"github.com/m3rciful/bookingbot/booking/session"
	"github.com/m3rciful/bookingbot/core/logger"
)

// Outcomes reported with each reply.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeReprompt  = "reprompt"
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
	OutcomeFail      = "fail"
)

// Scheduler queries the provider. Both calls fail soft and return empty on error.
type Scheduler interface {
	FetchCatalog(ctx context.Context) []scheduling.Service
	FetchSlots(ctx context.Context, serviceID int64, date time.Time) []scheduling.Slot
}

// Classifier summarizes a free-text request. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) string
}

// Reply is the single outbound message of a turn.
type Reply struct {
	Text string
	// Options are quick-reply choices, one per row. Empty clears any keyboard.
	Options []string
	Outcome string
}

// Options wires a Controller.
type Options struct {
	Scheduler Scheduler
	Sessions  *session.Store
	Notifier  notify.Sink
	// Classifier enables the free-text flow when set.
	Classifier Classifier
	// StrictSlots rejects times that were not offered for the chosen date.
	StrictSlots bool
	// DaysAhead is how many dates, starting today, are offered. Zero means 6.
	DaysAhead int
	Location  *time.Location
	Now       func() time.Time
	NewRef    func() string
}

// Controller runs the booking state machine.
type Controller struct {
	scheduler  Scheduler
	sessions   *session.Store
	notifier   notify.Sink
	classifier Classifier
	strict     bool
	days       int
	loc        *time.Location
	now        func() time.Time
	newRef     func() string
}

// New validates opts and builds a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Sessions == nil {
		return nil, errors.New("conversation: session store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("conversation: notifier is required")
	}
	if opts.Scheduler == nil && opts.Classifier == nil {
		return nil, errors.New("conversation: scheduler or classifier is required")
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = 6
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRef == nil {
		opts.NewRef = uuid.NewString
	}
	return &Controller{
		scheduler:  opts.Scheduler,
		sessions:   opts.Sessions,
		notifier:   opts.Notifier,
		classifier: opts.Classifier,
		strict:     opts.StrictSlots,
		days:       opts.DaysAhead,
		loc:        opts.Location,
		now:        opts.Now,
		newRef:     opts.NewRef,
	}, nil
}

// IntentMode reports whether conversations use the free-text flow.
func (c *Controller) IntentMode() bool {
	return c.classifier != nil
}

// Handle processes one inbound message for chatID. Turns for the same chat are
// serialized; different chats proceed concurrently.
func (c *Controller) Handle(ctx context.Context, chatID int64, text string) Reply {
	unlock := c.sessions.Lock(chatID)
	defer unlock()

	ctx = logger.WithChatID(ctx, chatID)
	sess, ok := c.sessions.Get(chatID)
	if !ok {
		return c.begin(ctx, chatID)
	}
	return c.step(ctx, sess, strings.TrimSpace(text))
}

// Start abandons any dialog in progress and begins a new one.
func (c *Controller) Start(ctx context.Context, chatID int64) Reply {
	unlock := c.sessions.Lock(chatID)
	defer unlock()

	ctx = logger.WithChatID(ctx, chatID)
	if sess, ok := c.sessions.Get(chatID); ok {
		c.abandon(ctx, sess, "restart")
	}
	return c.begin(ctx, chatID)
}

// Cancel abandons the dialog in progress, if any.
func (c *Controller) Cancel(ctx context.Context, chatID int64) Reply {
	unlock := c.sessions.Lock(chatID)
	defer unlock()

	ctx = logger.WithChatID(ctx, chatID)
	sess, ok := c.sessions.Get(chatID)
	if !ok {
		return Reply{Text: msgNothingToCancel, Outcome: OutcomeReprompt}
	}
	c.abandon(ctx, sess, "cancel")
	return Reply{Text: msgCancelled, Outcome: OutcomeAbandoned}
}

func (c *Controller) begin(ctx context.Context, chatID int64) Reply {
	if c.IntentMode() {
		sess, _ := c.sessions.Start(chatID, session.AwaitingIntent)
		c.logTransition(ctx, sess, 0, "start")
		return Reply{Text: msgAskIntent, Outcome: OutcomeAdvanced}
	}

	catalog := c.scheduler.FetchCatalog(ctx)
	if len(catalog) == 0 {
		c.sessions.Delete(chatID)
		logger.Warn(ctx, logger.CompFSM, "fsm.start",
			slog.String("status", "degraded"),
			slog.String("outcome", OutcomeFail),
			slog.String("cause", "catalog_unavailable"),
		)
		return Reply{Text: msgServicesDown, Outcome: OutcomeFail}
	}

	sess, _ := c.sessions.Start(chatID, session.AwaitingServiceSelection)
	sess.Catalog = catalog
	c.logTransition(ctx, sess, 0, "start")
	return Reply{Text: msgGreeting, Options: serviceNames(catalog), Outcome: OutcomeAdvanced}
}

func (c *Controller) step(ctx context.Context, sess *session.Session, text string) Reply {
	switch sess.State {
	case session.AwaitingServiceSelection:
		return c.onService(ctx, sess, text)
	case session.AwaitingDate:
		return c.onDate(ctx, sess, text)
	case session.AwaitingTime:
		return c.onTime(ctx, sess, text)
	case session.AwaitingIntent:
		return c.onIntent(ctx, sess, text)
	case session.AwaitingName:
		return c.onName(ctx, sess, text)
	case session.AwaitingPhone:
		return c.onPhone(ctx, sess, text)
	}
	// Completed sessions are deleted in the same turn; anything else is a stale entry.
	c.abandon(ctx, sess, "invalid_state")
	return c.begin(ctx, sess.ChatID)
}

func (c *Controller) onService(ctx context.Context, sess *session.Session, text string) Reply {
	svc, ok := sess.FindService(text)
	if !ok {
		return c.reprompt(sess, msgChooseService, serviceNames(sess.Catalog))
	}
	sess.Service = &svc
	c.advance(ctx, sess, session.AwaitingDate)
	return Reply{
		Text:    fmt.Sprintf(msgServiceSelectedFmt, svc.Name),
		Options: c.upcomingDates(),
		Outcome: OutcomeAdvanced,
	}
}

func (c *Controller) onDate(ctx context.Context, sess *session.Session, text string) Reply {
	date, err := time.ParseInLocation(scheduling.DateLayout, text, c.loc)
	if err != nil {
		return c.reprompt(sess, msgChooseDate, c.upcomingDates())
	}
	sess.Date = date

	slots := c.scheduler.FetchSlots(ctx, sess.Service.ID, date)
	if len(slots) == 0 {
		logger.Info(ctx, logger.CompFSM, "fsm.no_slots",
			slog.String("status", "ok"),
			slog.String("outcome", OutcomeReprompt),
			slog.String("state", sess.State.String()),
			slog.Int64("service_id", sess.Service.ID),
			slog.String("date", text),
		)
		return c.reprompt(sess, msgNoSlots, c.upcomingDates())
	}
	sess.Slots = slots
	c.advance(ctx, sess, session.AwaitingTime)
	return Reply{Text: msgChooseTime, Options: slotStarts(slots), Outcome: OutcomeAdvanced}
}

func (c *Controller) onTime(ctx context.Context, sess *session.Session, text string) Reply {
	if text == "" {
		return c.reprompt(sess, msgChooseTime, slotStarts(sess.Slots))
	}
	if c.strict && !sess.Offered(text) {
		return c.reprompt(sess, msgChooseOfferedTime, slotStarts(sess.Slots))
	}
	sess.Slot = text
	c.advance(ctx, sess, session.AwaitingName)
	return Reply{Text: msgAskName, Outcome: OutcomeAdvanced}
}

func (c *Controller) onIntent(ctx context.Context, sess *session.Session, text string) Reply {
	if text == "" {
		return c.reprompt(sess, msgAskIntentAgain, nil)
	}
	sess.Intent = c.classifier.Classify(ctx, text)
	c.advance(ctx, sess, session.AwaitingName)
	return Reply{Text: fmt.Sprintf(msgIntentAccepted, sess.Intent), Outcome: OutcomeAdvanced}
}

func (c *Controller) onName(ctx context.Context, sess *session.Session, text string) Reply {
	if text == "" {
		return c.reprompt(sess, msgAskName, nil)
	}
	sess.Name = text
	c.advance(ctx, sess, session.AwaitingPhone)
	return Reply{Text: msgAskPhone, Outcome: OutcomeAdvanced}
}

func (c *Controller) onPhone(ctx context.Context, sess *session.Session, text string) Reply {
	if text == "" {
		return c.reprompt(sess, msgAskPhone, nil)
	}
	sess.Phone = text
	c.advance(ctx, sess, session.Completed)

	b := notify.Booking{
		Reference: c.newRef(),
		ChatID:    sess.ChatID,
		Slot:      sess.Slot,
		Intent:    sess.Intent,
		Name:      sess.Name,
		Phone:     sess.Phone,
		Date:      sess.Date,
		CreatedAt: c.now(),
	}
	if sess.Service != nil {
		b.Service = sess.Service.Name
	}
	c.notifier.Notify(ctx, b)
	c.sessions.Delete(sess.ChatID)

	logger.Info(ctx, logger.CompFSM, "fsm.completed",
		slog.String("status", "ok"),
		slog.String("outcome", OutcomeCompleted),
		slog.String("booking_ref", b.Reference),
		slog.Duration("duration", c.now().Sub(sess.StartedAt)),
	)
	return Reply{Text: msgThanks, Outcome: OutcomeCompleted}
}

func (c *Controller) reprompt(sess *session.Session, text string, options []string) Reply {
	sess.Touch(c.now())
	return Reply{Text: text, Options: options, Outcome: OutcomeReprompt}
}

func (c *Controller) advance(ctx context.Context, sess *session.Session, next session.State) {
	from := sess.State
	if !sess.Advance(next, c.now()) {
		logger.Error(ctx, logger.CompFSM, "fsm.transition",
			slog.String("status", "fail"),
			slog.String("from_state", from.String()),
			slog.String("to_state", next.String()),
			slog.String("cause", "non_monotonic"),
		)
		return
	}
	c.logTransition(ctx, sess, from, "")
}

func (c *Controller) abandon(ctx context.Context, sess *session.Session, cause string) {
	c.sessions.Delete(sess.ChatID)
	logger.Info(ctx, logger.CompFSM, "fsm.transition",
		slog.String("status", "ok"),
		slog.String("outcome", OutcomeAbandoned),
		slog.String("from_state", sess.State.String()),
		slog.String("to_state", "idle"),
		slog.String("cause", cause),
	)
}

func (c *Controller) logTransition(ctx context.Context, sess *session.Session, from session.State, cause string) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("from_state", from.String()),
		slog.String("to_state", sess.State.String()),
	}
	if cause != "" {
		attrs = append(attrs, slog.String("cause", cause))
	}
	logger.Info(ctx, logger.CompFSM, "fsm.transition", attrs...)
}

// upcomingDates lists DaysAhead dates starting today in the configured location.
func (c *Controller) upcomingDates() []string {
	today := c.now().In(c.loc)
	out := make([]string, 0, c.days)
	for i := 0; i < c.days; i++ {
		out = append(out, today.AddDate(0, 0, i).Format(scheduling.DateLayout))
	}
	return out
}

func serviceNames(catalog []scheduling.Service) []string {
	out := make([]string, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s.Name)
	}
	return out
}

func slotStarts(slots []scheduling.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}
