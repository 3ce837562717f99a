package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
	tg "github.com/m3rciful/bookingbot/core/telegram"
)

// CommandRoutes binds every registered command to telebot with a handler summary log.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := "command." + normalizeHandlerName(cmd)
		h := def.Handler
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler: func(c tele.Context) error {
				return handleWithSummary(c, name, h)
			},
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "tg.wire.commands"),
		slog.Int("count", len(routes)),
	)
	return routes
}
