// Package intent summarizes free-text booking requests with a chat completion model.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/m3rciful/bookingbot/core/logger"
	"github.com/m3rciful/bookingbot/core/telegram/netutil"
)

// Instruction is the system prompt sent with every request.
const Instruction = "You help a beauty salon receptionist. Summarize in one short sentence what service the customer wants, " +
	"including any preferred date or time they mention. Reply with the summary only."

const maxSummaryRunes = 500

var errEmptyCompletion = errors.New("intent: empty completion")

// Completer is the subset of the OpenAI chat completions service used here.
type Completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures a Classifier.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Completer overrides the OpenAI client, mainly for tests.
	Completer Completer
}

// Classifier turns a customer's free text into a short request summary.
type Classifier struct {
	chat    Completer
	model   string
	timeout time.Duration
}

// New builds a Classifier backed by the OpenAI API unless opts.Completer is set.
func New(opts Options) *Classifier {
	if opts.Model == "" {
		opts.Model = string(openai.ChatModelGPT4oMini)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	chat := opts.Completer
	if chat == nil {
		reqOpts := []option.RequestOption{
			option.WithAPIKey(opts.APIKey),
			option.WithRequestTimeout(opts.Timeout),
			option.WithMaxRetries(1),
		}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
		client := openai.NewClient(reqOpts...)
		chat = &client.Chat.Completions
	}
	return &Classifier{chat: chat, model: opts.Model, timeout: opts.Timeout}
}

// Classify returns the summary for text. It never fails: on any error or an empty
// completion the fallback summary quoting the raw text is returned.
func (c *Classifier) Classify(ctx context.Context, text string) string {
	start := time.Now()
	summary, err := c.complete(ctx, text)
	if err != nil {
		logger.Warn(ctx, logger.CompIntent, "intent.classify",
			slog.String("status", "degraded"),
			slog.String("op", "classify"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", netutil.Redact(err)),
			slog.String("error_kind", netutil.Classify(err)),
		)
		return Fallback(text)
	}
	logger.Info(ctx, logger.CompIntent, "intent.classify",
		slog.String("status", "ok"),
		slog.String("op", "classify"),
		slog.Duration("duration", logger.Took(start)),
	)
	return summary
}

func (c *Classifier) complete(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(Instruction),
			openai.UserMessage(text),
		},
		Temperature:         openai.Float(0.2),
		MaxCompletionTokens: openai.Int(120),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errEmptyCompletion
	}
	return logger.SanitizeLimit(summary, maxSummaryRunes), nil
}

// Fallback is the summary used when the model is unavailable.
func Fallback(text string) string {
	return "Customer request: " + strings.TrimSpace(text)
}
