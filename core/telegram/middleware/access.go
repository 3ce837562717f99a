package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
	tghelpers "github.com/m3rciful/bookingbot/core/telegram/helpers"
)

// AccessOptions restricts a handler to one chat.
type AccessOptions struct {
	// ChatID is the only chat allowed through. Zero lets everyone through.
	ChatID   int64
	OnReject tele.HandlerFunc
}

// Restrict wraps a single handler with the chat check.
func Restrict(opts AccessOptions, h tele.HandlerFunc) tele.HandlerFunc {
	return RestrictMiddleware(opts)(h)
}

// RestrictMiddleware lets only updates from opts.ChatID reach downstream handlers.
// Rejected updates are logged and answered with OnReject when set.
func RestrictMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if opts.ChatID == 0 {
			return next
		}
		return func(c tele.Context) error {
			if chatID, _ := tghelpers.IDs(c); chatID == opts.ChatID {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "access.denied",
				slog.String("status", "skip"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
