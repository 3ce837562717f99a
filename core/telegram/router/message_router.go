package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/bookingbot/core/telegram"
)

// TextOptions controls fallback behaviour for message updates.
type TextOptions struct {
	// UnknownText handles text when the registry has no fallback.
	UnknownText tele.HandlerFunc
	// NonText handles messages without text (photos, stickers, voice, ...).
	NonText tele.HandlerFunc
}

// nonTextEndpoints lists the message kinds routed to TextOptions.NonText.
var nonTextEndpoints = []string{
	tele.OnPhoto,
	tele.OnSticker,
	tele.OnVoice,
	tele.OnVideo,
	tele.OnAudio,
	tele.OnDocument,
	tele.OnLocation,
	tele.OnContact,
	tele.OnAnimation,
	tele.OnVideoNote,
}

// TextRoutes builds handlers for text and non-text message routing.
// Command aliases typed as text reach their command handler; anything else goes to the
// registry's text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && len(text) > 0 && text[0] == '/' {
				return handleWithSummary(c, "command."+normalizeHandlerName(key), cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "text", fb)
			}
		}
		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", opts.UnknownText)
		}
		logHandlerSummary(c, "unknown_text", time.Now(), "skip", nil)
		return nil
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
	if opts.NonText != nil {
		nonText := func(c tele.Context) error {
			return handleWithSummary(c, "non_text", opts.NonText)
		}
		for _, ep := range nonTextEndpoints {
			routes = append(routes, tg.Route{Endpoint: ep, Handler: nonText})
		}
	}
	return routes
}
