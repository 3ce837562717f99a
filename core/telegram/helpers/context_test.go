package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/bookingbot/core/logger"
)

type fakeContext struct {
	tele.Context
	update tele.Update
	store  map[string]any
}

func newFakeContext(updateID int, chatID, userID int64) *fakeContext {
	return &fakeContext{
		update: tele.Update{ID: updateID, Message: &tele.Message{
			Chat:   &tele.Chat{ID: chatID},
			Sender: &tele.User{ID: userID},
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update  { return f.update }
func (f *fakeContext) Chat() *tele.Chat     { return f.update.Message.Chat }
func (f *fakeContext) Sender() *tele.User   { return f.update.Message.Sender }
func (f *fakeContext) Get(key string) any   { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }

func TestBuildContextCarriesUpdateMeta(t *testing.T) {
	c := newFakeContext(10, 111, 7)
	ctx := BuildContext(c)
	assert.Equal(t, "10:111:7", logger.RIDFrom(ctx))
	assert.Equal(t, int64(111), logger.ChatIDFrom(ctx))
	assert.Equal(t, int64(7), logger.UserIDFrom(ctx))
	assert.Equal(t, 10, logger.UpdateIDFrom(ctx))

	again := BuildContext(c)
	assert.Equal(t, ctx, again)
}

func TestWithHandlerUpdatesStoredContext(t *testing.T) {
	c := newFakeContext(1, 2, 3)
	WithHandler(c, "booking.text")
	ctx, ok := ContextFrom(c)
	assert.True(t, ok)
	assert.Equal(t, "booking.text", logger.HandlerFrom(ctx))
}
