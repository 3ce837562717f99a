package telegram

import (
	"net/http"
	"time"

	"github.com/m3rciful/bookingbot/core/telegram/netutil"
)

const (
	defaultClientTimeout = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 2 * time.Second
)

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// pollTimeout is the long-poll timeout; zero means webhook mode.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	transport := netutil.NewTransport(pollTimeout + 10*time.Second)
	return &http.Client{
		Timeout:   max(defaultClientTimeout, pollTimeout+15*time.Second),
		Transport: netutil.NewRetryTransport(transport, defaultRetryAttempts, defaultRetryBackoff),
	}
}
