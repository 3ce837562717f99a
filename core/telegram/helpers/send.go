package helpers

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
	"github.com/m3rciful/bookingbot/core/telegram/netutil"
)

// SendText sends raw text (no parse mode) to the current chat. A nil markup removes any
// reply keyboard left over from a previous prompt. Replies are sent in the calling
// goroutine so they keep the order of the conversation.
func SendText(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		markup = &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	err := c.Send(text, &tele.SendOptions{ReplyMarkup: markup, DisableWebPagePreview: true})
	if err != nil {
		logger.Warn(BuildContext(c), "tg", "reply.fail",
			slog.String("status", "fail"),
			slog.String("err", netutil.Redact(err)),
			slog.String("error_kind", netutil.Classify(err)),
		)
	}
	return err
}
