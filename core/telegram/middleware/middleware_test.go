package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	update tele.Update
	store  map[string]any
	sent   []any
}

func newFakeContext(chatID, userID int64, text string) *fakeContext {
	return &fakeContext{
		update: tele.Update{ID: 1, Message: &tele.Message{
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: userID},
			Text:   text,
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update   { return f.update }
func (f *fakeContext) Chat() *tele.Chat      { return f.update.Message.Chat }
func (f *fakeContext) Sender() *tele.User    { return f.update.Message.Sender }
func (f *fakeContext) Text() string          { return f.update.Message.Text }
func (f *fakeContext) Get(key string) any    { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Send(what any, _ ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestRateLimitMiddlewarePerUserBucket(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		PerSecond: 1,
		Burst:     2,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(newFakeContext(10, 1, "hi")))
	}
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(newFakeContext(20, 2, "hi")))
	assert.Equal(t, 3, handled, "other users keep their own bucket")

	now = now.Add(time.Second)
	require.NoError(t, h(newFakeContext(10, 1, "hi")))
	assert.Equal(t, 4, handled)
}

func TestRateLimitMiddlewareExclusions(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		PerSecond: 0.001,
		Burst:     1,
		Exclude:   map[string]struct{}{"message": {}},
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 5; i++ {
		require.NoError(t, h(newFakeContext(10, 1, "hi")))
	}
	assert.Equal(t, 5, handled)
}

func TestRecoverMiddlewareTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newFakeContext(1, 1, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	ok := RecoverMiddleware(func(tele.Context) error { return errors.New("plain") })
	assert.EqualError(t, ok(newFakeContext(1, 1, "x")), "plain")
}

func TestMessageMetricsMiddlewareCountsReplies(t *testing.T) {
	c := newFakeContext(1, 1, "x")
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		_ = c.Send("first", &tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{RemoveKeyboard: true}})
		return c.Send("second", &tele.ReplyMarkup{ResizeKeyboard: true})
	})
	require.NoError(t, h(c))
	msgs, kb := GetCounters(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	assert.Len(t, c.sent, 2)
}

func TestLoggerMiddlewareStoresContext(t *testing.T) {
	c := newFakeContext(5, 6, "hello")
	var seen bool
	h := LoggerMiddleware(func(c tele.Context) error {
		_, seen = c.Get("logger_ctx").(interface{ Done() <-chan struct{} })
		return nil
	})
	require.NoError(t, h(c))
	assert.True(t, seen)
	assert.Equal(t, "1:5:6", c.Get("rid"))
}

func TestRestrictMiddlewareAllowsOnlyConfiguredChat(t *testing.T) {
	rejected := 0
	handled := 0
	h := Restrict(AccessOptions{
		ChatID:   42,
		OnReject: func(tele.Context) error { rejected++; return nil },
	}, func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(newFakeContext(42, 7, "/status")))
	require.NoError(t, h(newFakeContext(43, 7, "/status")))
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, rejected)

	open := Restrict(AccessOptions{}, func(tele.Context) error { handled++; return nil })
	require.NoError(t, open(newFakeContext(99, 1, "/status")))
	assert.Equal(t, 2, handled)
}
