package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	resp *openai.ChatCompletion
	err  error
	wait bool

	got openai.ChatCompletionNewParams
}

func (f *fakeCompleter) New(ctx context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.got = body
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestClassifyReturnsSummary(t *testing.T) {
	fake := &fakeCompleter{resp: completion("  Haircut on Friday afternoon \n")}
	c := New(Options{Model: "gpt-test", Completer: fake})

	got := c.Classify(context.Background(), "can I get a haircut friday after 3?")
	assert.Equal(t, "Haircut on Friday afternoon", got)
	assert.Equal(t, openai.ChatModel("gpt-test"), fake.got.Model)
	require.Len(t, fake.got.Messages, 2)
}

func TestClassifyFallsBackOnError(t *testing.T) {
	c := New(Options{Completer: &fakeCompleter{err: errors.New("429 Too Many Requests")}})
	assert.Equal(t, "Customer request: nails please", c.Classify(context.Background(), " nails please "))
}

func TestClassifyFallsBackOnEmptyCompletion(t *testing.T) {
	c := New(Options{Completer: &fakeCompleter{resp: completion("   ")}})
	assert.Equal(t, Fallback("massage"), c.Classify(context.Background(), "massage"))

	c = New(Options{Completer: &fakeCompleter{resp: &openai.ChatCompletion{}}})
	assert.Equal(t, Fallback("massage"), c.Classify(context.Background(), "massage"))
}

func TestClassifyTimesOut(t *testing.T) {
	c := New(Options{Timeout: 20 * time.Millisecond, Completer: &fakeCompleter{wait: true}})
	start := time.Now()
	assert.Equal(t, Fallback("brows"), c.Classify(context.Background(), "brows"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{APIKey: "sk-test"})
	assert.Equal(t, string(openai.ChatModelGPT4oMini), c.model)
	assert.Equal(t, 15*time.Second, c.timeout)
	assert.NotNil(t, c.chat)
}
