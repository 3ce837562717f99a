package telegram

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/bookingbot/core/config"
	"github.com/m3rciful/bookingbot/core/logger"
	tghelpers "github.com/m3rciful/bookingbot/core/telegram/helpers"
	"github.com/m3rciful/bookingbot/core/telegram/middleware"
	"github.com/m3rciful/bookingbot/core/telegram/serial"
)

// DefaultMiddlewares builds the shared middleware chain. The serial stage comes first so
// every later stage already runs on the per-chat worker, in arrival order.
func DefaultMiddlewares(cfg *coreconfig.Config, queue *serial.Queue, onLimited tele.HandlerFunc) []Middleware {
	var mws []Middleware
	if queue != nil {
		mws = append(mws, Middleware{Name: "serial", Use: serial.Middleware(queue, logHandlerError)})
	}
	mws = append(mws, Middleware{Name: "recover", Use: middleware.RecoverMiddleware})

	if cfg != nil && cfg.RateLimit.PerSecond > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[t] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				PerSecond: cfg.RateLimit.PerSecond,
				Burst:     cfg.RateLimit.Burst,
				Exclude:   ex,
				OnLimited: onLimited,
			}),
		})
	}

	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}

func logHandlerError(err error, c tele.Context) {
	logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "handler.error",
		slog.String("status", "fail"),
		logger.Err(err),
	)
}
