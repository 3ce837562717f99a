package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/booking/conversation"
	"github.com/m3rciful/bookingbot/core/buildinfo"
	coretelegram "github.com/m3rciful/bookingbot/core/telegram"
	"github.com/m3rciful/bookingbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/bookingbot/core/telegram/helpers"
	"github.com/m3rciful/bookingbot/core/telegram/keyboard"
	"github.com/m3rciful/bookingbot/core/telegram/middleware"
	"github.com/m3rciful/bookingbot/core/telegram/router"
)

const (
	msgSlowDown = "You're sending messages too fast. Please wait a moment."
	msgDenied   = "This command is only available to the operator."
)

func (a *App) registry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Book an appointment",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Cancel the current booking",
		Aliases:     []string{"stop"},
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler: middleware.Restrict(middleware.AccessOptions{
			ChatID:   a.cfg.Operator.ChatID,
			OnReject: func(c tele.Context) error { return tghelpers.SendText(c, msgDenied, nil) },
		}, a.handleStatus),
		Description: "Operator status",
		Hidden:      true,
	})
	reg.SetTextFallback(a.handleText)
	return reg
}

func (a *App) routes(reg *coretelegram.Registry) []coretelegram.Route {
	routes := router.CommandRoutes(reg)
	return append(routes, router.TextRoutes(reg, router.TextOptions{NonText: a.handleNonText})...)
}

func (a *App) handleStart(c tele.Context) error {
	chatID, _ := tghelpers.IDs(c)
	return a.reply(c, a.controller.Start(tghelpers.BuildContext(c), chatID))
}

func (a *App) handleCancel(c tele.Context) error {
	chatID, _ := tghelpers.IDs(c)
	return a.reply(c, a.controller.Cancel(tghelpers.BuildContext(c), chatID))
}

func (a *App) handleText(c tele.Context) error {
	chatID, _ := tghelpers.IDs(c)
	return a.reply(c, a.controller.Handle(tghelpers.BuildContext(c), chatID, c.Text()))
}

// handleNonText treats stickers, photos and the like as empty input.
func (a *App) handleNonText(c tele.Context) error {
	chatID, _ := tghelpers.IDs(c)
	return a.reply(c, a.controller.Handle(tghelpers.BuildContext(c), chatID, ""))
}

func (a *App) handleStatus(c tele.Context) error {
	text := fmt.Sprintf("build %s\nsessions: %d\nchat workers: %d\nnotifications sent: %d, failed: %d",
		buildinfo.String(),
		a.sessions.Len(),
		a.queue.Active(),
		a.dispatcher.Sent(),
		a.dispatcher.ErrorCount(),
	)
	return tghelpers.SendText(c, text, nil)
}

func (a *App) handleLimited(c tele.Context) error {
	c.Set(router.OutcomeKey, "rate_limited")
	return tghelpers.SendText(c, msgSlowDown, nil)
}

// reply sends r with its options laid out one per row.
func (a *App) reply(c tele.Context, r conversation.Reply) error {
	if r.Outcome != "" {
		c.Set(router.OutcomeKey, r.Outcome)
	}
	return tghelpers.SendText(c, r.Text, keyboard.Options(r.Options, 1))
}
