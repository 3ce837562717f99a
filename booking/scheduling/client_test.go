package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:   srv.URL,
		CompanyID: "555",
		Token:     "secret",
		Timeout:   time.Second,
	})
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestFetchCatalog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/companies/555/services", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"Haircut"},{"id":2,"title":"Manicure"}]}`))
	})

	got := c.FetchCatalog(context.Background())
	assert.Equal(t, []Service{{ID: 1, Name: "Haircut"}, {ID: 2, Name: "Manicure"}}, got)
}

func TestFetchSlots(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/records/555/available_times", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body struct {
			ServiceIDs []int64 `json:"service_ids"`
			Date       string  `json:"date"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{7}, body.ServiceIDs)
		assert.Equal(t, "2024-03-01", body.Date)
		_, _ = w.Write([]byte(`{"data":[{"start":"10:00","datetime":"2024-03-01T10:00:00+03:00"},{"time":"11:00"}]}`))
	})

	got := c.FetchSlots(context.Background(), 7, date(t, "2024-03-01"))
	assert.Equal(t, []Slot{
		{Start: "10:00", DateTime: "2024-03-01T10:00:00+03:00"},
		{Start: "11:00"},
	}, got)
}

func TestFetchFailsSoft(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"invalid json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":`))
		},
		"missing data": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false}`))
		},
		"entry without name": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Haircut"},{"id":2}]}`))
		},
		"entry without start": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"datetime":"2024-03-01T10:00:00"}]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			assert.Empty(t, c.FetchCatalog(context.Background()))
			assert.Empty(t, c.FetchSlots(context.Background(), 1, date(t, "2024-03-01")))
		})
	}
}

func TestFetchErrorsAreClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, code, err := c.fetchCatalog(context.Background())
	assert.ErrorIs(t, err, ErrProviderStatus)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "status", errorKind(err))

	_, err = decodeSlots([]byte(`{"data":[{}]}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, "malformed", errorKind(err))
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(Options{BaseURL: srv.URL, CompanyID: "1", Timeout: 50 * time.Millisecond})
	start := time.Now()
	assert.Empty(t, c.FetchCatalog(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":3,"name":"Massage"}]}`))
	})
	assert.Equal(t, []Service{{ID: 3, Name: "Massage"}}, c.FetchCatalog(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:1", CompanyID: "1", RatePerSecond: 0.001, Burst: 1})
	c.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.fetchCatalog(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
