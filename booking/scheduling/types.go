package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DateLayout is the calendar date format exchanged with customers and the provider.
const DateLayout = "2006-01-02"

var (
	// ErrMalformedResponse marks a provider payload that does not match the expected schema.
	ErrMalformedResponse = errors.New("scheduling: malformed response")
	// ErrProviderStatus marks a non-2xx provider response.
	ErrProviderStatus = errors.New("scheduling: provider returned non-success status")
)

// Service is one bookable service from the provider catalog.
type Service struct {
	ID   int64
	Name string
}

// Slot is one bookable time window for a service on a date.
type Slot struct {
	// Start is the label shown to the customer, e.g. "10:00".
	Start string
	// DateTime is the full timestamp when the provider sends one.
	DateTime string
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type rawService struct {
	ID    *int64  `json:"id"`
	Name  *string `json:"name"`
	Title *string `json:"title"`
}

type rawSlot struct {
	Start    *string `json:"start"`
	Time     *string `json:"time"`
	DateTime string  `json:"datetime"`
}

func decodeData(body []byte, dst any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: missing data array", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// decodeCatalog validates every entry; one entry without id or name rejects the payload.
func decodeCatalog(body []byte) ([]Service, error) {
	var raws []rawService
	if err := decodeData(body, &raws); err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(raws))
	for i, r := range raws {
		name := ""
		switch {
		case r.Name != nil:
			name = *r.Name
		case r.Title != nil:
			name = *r.Title
		}
		name = strings.TrimSpace(name)
		if r.ID == nil || name == "" {
			return nil, fmt.Errorf("%w: service entry %d lacks id or name", ErrMalformedResponse, i)
		}
		out = append(out, Service{ID: *r.ID, Name: name})
	}
	return out, nil
}

// decodeSlots validates every entry; one entry without a start rejects the payload.
func decodeSlots(body []byte) ([]Slot, error) {
	var raws []rawSlot
	if err := decodeData(body, &raws); err != nil {
		return nil, err
	}
	out := make([]Slot, 0, len(raws))
	for i, r := range raws {
		start := ""
		switch {
		case r.Start != nil:
			start = *r.Start
		case r.Time != nil:
			start = *r.Time
		}
		start = strings.TrimSpace(start)
		if start == "" {
			return nil, fmt.Errorf("%w: slot entry %d lacks start", ErrMalformedResponse, i)
		}
		out = append(out, Slot{Start: start, DateTime: r.DateTime})
	}
	return out, nil
}
