// Package session keeps one in-memory booking session per chat.
package session

import (
	"time"

	"github.com/m3rciful/bookingbot/booking/scheduling"
)

// State is a step of the booking conversation.
type State int

// States in their fixed order. A session only moves forward; abandoning deletes it.
// The structured flow walks ServiceSelection..Phone; the intent flow replaces the
// first three steps with AwaitingIntent.
const (
	AwaitingServiceSelection State = iota + 1
	AwaitingDate
	AwaitingTime
	AwaitingIntent
	AwaitingName
	AwaitingPhone
	Completed
)

var stateNames = map[State]string{
	AwaitingServiceSelection: "awaiting_service",
	AwaitingDate:             "awaiting_date",
	AwaitingTime:             "awaiting_time",
	AwaitingIntent:           "awaiting_intent",
	AwaitingName:             "awaiting_name",
	AwaitingPhone:            "awaiting_phone",
	Completed:                "completed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "idle"
}

// Session is the progress of one chat through the booking flow.
// Fields are populated step by step; zero values mean "not chosen yet".
type Session struct {
	ChatID int64
	State  State

	// Catalog is the service list captured when services were first offered.
	Catalog []scheduling.Service
	Service *scheduling.Service
	Date    time.Time
	// Slots holds the starts offered for Date.
	Slots  []scheduling.Slot
	Slot   string
	Intent string
	Name   string
	Phone  string

	StartedAt time.Time
	UpdatedAt time.Time
}

// FindService returns the catalog entry whose name equals name exactly.
func (s *Session) FindService(name string) (scheduling.Service, bool) {
	for _, svc := range s.Catalog {
		if svc.Name == name {
			return svc, true
		}
	}
	return scheduling.Service{}, false
}

// Offered reports whether start is one of the slots offered for the chosen date.
func (s *Session) Offered(start string) bool {
	for _, slot := range s.Slots {
		if slot.Start == start {
			return true
		}
	}
	return false
}

// Advance moves the session to next. Moving backwards or staying put is refused.
func (s *Session) Advance(next State, now time.Time) bool {
	if next <= s.State {
		return false
	}
	s.State = next
	s.UpdatedAt = now
	return true
}

// Touch records activity without changing state.
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now
}
