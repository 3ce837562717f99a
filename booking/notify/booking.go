// Package notify forwards completed bookings to the operator chat.
package notify

import (
	"strings"
	"time"

	"github.com/m3rciful/bookingbot/booking/scheduling"
)

// Booking is a completed request handed to the operator.
type Booking struct {
	Reference string
	ChatID    int64
	Service   string
	Date      time.Time
	Slot      string
	// Intent is the classifier summary; set only by the free-text flow.
	Intent    string
	Name      string
	Phone     string
	CreatedAt time.Time
}

// Text renders the operator message.
func (b Booking) Text() string {
	var sb strings.Builder
	sb.WriteString("📅 New booking\n\n")
	if b.Intent != "" {
		line(&sb, "💬 Request", b.Intent)
	}
	line(&sb, "💡 Service", b.Service)
	if !b.Date.IsZero() {
		line(&sb, "🗓 Date", b.Date.Format(scheduling.DateLayout))
	}
	line(&sb, "🕒 Time", b.Slot)
	line(&sb, "👤 Name", b.Name)
	line(&sb, "📱 Phone", b.Phone)
	if b.Reference != "" {
		sb.WriteString("\nref ")
		sb.WriteString(shortRef(b.Reference))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func line(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func shortRef(ref string) string {
	if i := strings.IndexByte(ref, '-'); i > 0 {
		return ref[:i]
	}
	return ref
}
