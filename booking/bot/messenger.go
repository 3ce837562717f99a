package bot

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// messenger sends plain text through the bot API.
type messenger struct {
	bot *tele.Bot
}

func (m messenger) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
