package telegram

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
)

// CommandSetter is the subset of *tele.Bot used to publish the command menu.
type CommandSetter interface {
	SetCommands(opts ...any) error
}

// SetupCommands publishes the visible registry commands as the Telegram command menu.
// Failures are logged; the bot keeps working without a menu.
func SetupCommands(bot CommandSetter, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	err := bot.SetCommands(list)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int("count", len(list)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, logger.Err(err))
	}
	logger.TWire.LogAttrs(context.Background(), level, "register.commands", attrs...)
}

var _ CommandSetter = (*tele.Bot)(nil)
