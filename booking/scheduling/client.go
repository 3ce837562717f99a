// Package scheduling queries the scheduling provider for the service catalog and free slots.
//
// Both queries fail soft: any transport error, non-2xx status or malformed payload is logged
// and reported to the caller as an empty result, which the conversation treats as
// "unavailable".
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/bookingbot/core/logger"
	"github.com/m3rciful/bookingbot/core/telegram/netutil"
)

const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL   string
	CompanyID string
	Token     string
	// Timeout bounds each provider call including retries. Zero means 10s.
	Timeout time.Duration
	// RatePerSecond and Burst shape outbound calls. Zero rate disables limiting.
	RatePerSecond float64
	Burst         int
	// HTTPClient overrides the default retrying client.
	HTTPClient *http.Client
}

// Client talks to the provider REST API.
type Client struct {
	base      string
	companyID string
	token     string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
}

// New builds a Client. Transient network failures and 429/5xx responses are retried by
// the shared retry transport within the call timeout.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: netutil.NewRetryTransport(netutil.NewTransport(opts.Timeout), 2, 300*time.Millisecond),
		}
	}
	var lim *rate.Limiter
	if opts.RatePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(opts.Burst, 1))
	}
	return &Client{
		base:      opts.BaseURL,
		companyID: opts.CompanyID,
		token:     opts.Token,
		timeout:   opts.Timeout,
		http:      hc,
		limiter:   lim,
	}
}

// FetchCatalog returns the provider's services in display order, or nil on any failure.
func (c *Client) FetchCatalog(ctx context.Context) []Service {
	start := time.Now()
	services, code, err := c.fetchCatalog(ctx)
	c.logCall(ctx, "catalog.fetch", start, code, len(services), err)
	if err != nil {
		return nil
	}
	return services
}

// FetchSlots returns free slots for serviceID on date, or nil on any failure.
func (c *Client) FetchSlots(ctx context.Context, serviceID int64, date time.Time) []Slot {
	start := time.Now()
	slots, code, err := c.fetchSlots(ctx, serviceID, date)
	c.logCall(ctx, "slots.fetch", start, code, len(slots), err,
		slog.Int64("service_id", serviceID),
		slog.String("date", date.Format(DateLayout)),
	)
	if err != nil {
		return nil
	}
	return slots
}

func (c *Client) fetchCatalog(ctx context.Context) ([]Service, int, error) {
	endpoint := fmt.Sprintf("%s/companies/%s/services", c.base, url.PathEscape(c.companyID))
	body, code, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, code, err
	}
	services, err := decodeCatalog(body)
	return services, code, err
}

func (c *Client) fetchSlots(ctx context.Context, serviceID int64, date time.Time) ([]Slot, int, error) {
	endpoint := fmt.Sprintf("%s/records/%s/available_times", c.base, url.PathEscape(c.companyID))
	payload, err := json.Marshal(struct {
		ServiceIDs []int64 `json:"service_ids"`
		Date       string  `json:"date"`
	}{ServiceIDs: []int64{serviceID}, Date: date.Format(DateLayout)})
	if err != nil {
		return nil, 0, fmt.Errorf("encode slots request: %w", err)
	}
	body, code, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, code, err
	}
	slots, err := decodeSlots(body)
	return slots, code, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrProviderStatus, resp.StatusCode)
	}
	return data, resp.StatusCode, nil
}

func (c *Client) logCall(ctx context.Context, event string, start time.Time, code, count int, err error, extra ...slog.Attr) {
	attrs := append([]slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int("count", count),
		slog.Duration("duration", logger.Took(start)),
	}, extra...)
	if code != 0 {
		attrs = append(attrs, slog.Int("http_code", code))
	}
	if err != nil {
		attrs = append(attrs,
			logger.Err(err),
			slog.String("error_kind", errorKind(err)),
		)
		logger.Error(ctx, logger.CompScheduling, event, attrs...)
		return
	}
	logger.Info(ctx, logger.CompScheduling, event, attrs...)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrProviderStatus):
		return "status"
	}
	return netutil.Classify(err)
}
