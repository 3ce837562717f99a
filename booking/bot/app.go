// Package bot binds the booking conversation to Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/booking/appconfig"
	"github.com/m3rciful/bookingbot/booking/conversation"
	"github.com/m3rciful/bookingbot/booking/intent"
	"github.com/m3rciful/bookingbot/booking/notify"
	"github.com/m3rciful/bookingbot/booking/outbox"
	"github.com/m3rciful/bookingbot/booking/scheduling"
	"github.com/m3rciful/bookingbot/booking/session"
	"github.com/m3rciful/bookingbot/core/logger"
	coretelegram "github.com/m3rciful/bookingbot/core/telegram"
	"github.com/m3rciful/bookingbot/core/telegram/sender"
	"github.com/m3rciful/bookingbot/core/telegram/serial"
)

var (
	newDispatcher = sender.NewDispatcher
	newController = conversation.New
)

// Deps overrides infrastructure built from config. Zero fields use the defaults.
type Deps struct {
	// Bot replaces the bot built from the core config.
	Bot        *tele.Bot
	DB         *sqlx.DB
	Scheduler  conversation.Scheduler
	Classifier conversation.Classifier
	// OutboxRepo replaces the Postgres repository in outbox mode.
	OutboxRepo outbox.Repo
	Now        func() time.Time
}

// App holds the wired booking bot.
type App struct {
	cfg *appconfig.Config
	bot *tele.Bot
	db  *sqlx.DB

	sessions   *session.Store
	controller *conversation.Controller
	queue      *serial.Queue
	dispatcher *sender.Dispatcher
	outbox     *outbox.Sender

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New wires every component from cfg.
func New(cfg *appconfig.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	useOutbox := cfg.Outbox.Mode == appconfig.DeliveryOutbox
	if useOutbox && deps.OutboxRepo == nil && deps.DB == nil {
		return nil, errors.New("bot: outbox delivery requires a database")
	}

	b := deps.Bot
	if b == nil {
		if b, err = coretelegram.NewBot(cfg.CoreConfig()); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg:      cfg,
		bot:      b,
		db:       deps.DB,
		sessions: session.NewStore(session.Options{TTL: cfg.Booking.SessionTTL(), Now: deps.Now}),
		queue:    serial.New(serial.Options{}),
		dispatcher: newDispatcher(sender.Options{
			Workers:      2,
			MaxRetries:   3,
			RetryBackoff: time.Second,
		}),
	}

	msgr := messenger{bot: b}
	operator := cfg.Operator.ChatID
	direct := notify.NewDirect(msgr, a.dispatcher, operator)
	var sink notify.Sink = direct
	if useOutbox {
		repo := deps.OutboxRepo
		if repo == nil {
			repo = outbox.NewPostgresRepo(deps.DB)
		}
		a.outbox = outbox.NewSender(repo, func(ctx context.Context, msg outbox.Message) error {
			return msgr.Send(ctx, msg.ChatID, msg.Payload)
		}, outbox.SenderOptions{
			PollInterval: cfg.Outbox.PollInterval(),
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		})
		sink = notify.NewOutbox(repo, notify.OutboxOptions{
			OperatorChatID: operator,
			Wake:           a.outbox.Wake,
			Fallback:       direct,
			EnqueueTimeout: cfg.Outbox.EnqueueTimeout(),
		})
	}

	copts := conversation.Options{
		Sessions:    a.sessions,
		Notifier:    sink,
		StrictSlots: cfg.Booking.StrictSlots,
		DaysAhead:   cfg.Booking.DaysAhead,
		Location:    loc,
		Now:         deps.Now,
	}
	if cfg.IntentEnabled() {
		copts.Classifier = deps.Classifier
		if copts.Classifier == nil {
			copts.Classifier = intent.New(intent.Options{
				APIKey:  cfg.Classifier.APIKey,
				BaseURL: cfg.Classifier.BaseURL,
				Model:   cfg.Classifier.Model,
				Timeout: cfg.Classifier.Timeout(),
			})
		}
	} else {
		copts.Scheduler = deps.Scheduler
		if copts.Scheduler == nil {
			copts.Scheduler = scheduling.New(scheduling.Options{
				BaseURL:       cfg.Scheduling.BaseURL,
				CompanyID:     cfg.Scheduling.CompanyID,
				Token:         cfg.Scheduling.Token,
				Timeout:       cfg.Scheduling.Timeout(),
				RatePerSecond: cfg.Scheduling.RatePerSecond,
				Burst:         cfg.Scheduling.Burst,
			})
		}
	}
	if a.controller, err = newController(copts); err != nil {
		a.dispatcher.Close()
		return nil, err
	}
	return a, nil
}

// TelegramRunOptions implements the runner contract.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.registry()
	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Bot:         a.bot,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), a.queue, a.handleLimited),
		Routes:      a.routes(reg),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stop = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sessions.RunJanitor(bg, 0)
	}()

	if a.outbox != nil {
		if err := a.outbox.Recover(ctx); err != nil {
			cancel()
			return fmt.Errorf("bot: outbox recovery: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.outbox.Run(bg)
		}()
	}

	mode := appconfig.ModeStructured
	if a.controller.IntentMode() {
		mode = appconfig.ModeIntent
	}
	logger.Info(ctx, "app", "booking.ready",
		slog.String("status", "ok"),
		slog.String("mode", mode),
		slog.String("delivery", a.cfg.Outbox.Mode),
		slog.Bool("strict_slots", a.cfg.Booking.StrictSlots),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	var errs []error
	if err := a.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("serial queue: %w", err))
	}
	if a.stop != nil {
		a.stop()
	}
	a.wg.Wait()
	a.dispatcher.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	logger.Info(ctx, "app", "booking.stopped",
		slog.String("status", logger.Status(errors.Join(errs...))),
		slog.Int("sessions", a.sessions.Len()),
		slog.Uint64("sent", a.dispatcher.Sent()),
	)
	return errors.Join(errs...)
}
