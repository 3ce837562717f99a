// Package appconfig holds the booking bot configuration: the core runtime settings plus
// the scheduling provider, operator, classifier, booking flow, outbox and database sections.
package appconfig

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/bookingbot/core/config"
	coredatabase "github.com/m3rciful/bookingbot/core/database"
)

// Booking flow modes.
const (
	ModeStructured = "structured"
	ModeIntent     = "intent"
)

// Operator notification delivery modes.
const (
	DeliveryDirect = "direct"
	DeliveryOutbox = "outbox"
)

// SchedulingConfig points at the scheduling provider REST API.
type SchedulingConfig struct {
	BaseURL        string  `yaml:"base_url" envconfig:"SCHEDULING_BASE_URL"`
	CompanyID      string  `yaml:"company_id" envconfig:"YCLIENTS_COMPANY_ID"`
	Token          string  `yaml:"token" envconfig:"YCLIENTS_API_TOKEN"`
	TimeoutSeconds int     `yaml:"timeout_seconds" envconfig:"SCHEDULING_TIMEOUT_SECONDS"`
	RatePerSecond  float64 `yaml:"rate_per_second" envconfig:"SCHEDULING_RATE_PER_SECOND"`
	Burst          int     `yaml:"burst" envconfig:"SCHEDULING_BURST"`
}

// Timeout returns the per-request timeout.
func (s SchedulingConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// OperatorConfig identifies the chat receiving completed bookings.
type OperatorConfig struct {
	ChatID int64 `yaml:"chat_id" envconfig:"ADMIN_CHAT_ID"`
}

// ClassifierConfig configures the optional intent classifier.
type ClassifierConfig struct {
	APIKey         string `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL        string `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
	Model          string `yaml:"model" envconfig:"OPENAI_MODEL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"OPENAI_TIMEOUT_SECONDS"`
}

// Timeout returns the per-call timeout.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BookingConfig tunes the conversation flow.
type BookingConfig struct {
	Mode string `yaml:"mode" envconfig:"BOOKING_MODE"`
	// StrictSlots only accepts a time that was offered for the chosen date.
	StrictSlots bool `yaml:"strict_slots" envconfig:"BOOKING_STRICT_SLOTS"`
	// Timezone is the IANA zone used to compute "today" for the offered dates.
	Timezone string `yaml:"timezone" envconfig:"BOOKING_TIMEZONE"`
	// SessionTTLMinutes expires conversations idle for longer; 0 keeps the default.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" envconfig:"BOOKING_SESSION_TTL_MINUTES"`
	DaysAhead         int `yaml:"days_ahead" envconfig:"BOOKING_DAYS_AHEAD"`
}

// SessionTTL returns the idle expiry for sessions.
func (b BookingConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLMinutes) * time.Minute
}

// Location resolves Timezone, falling back to the process local zone.
func (b BookingConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(b.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(b.Timezone)
}

// OutboxConfig selects how operator notifications are delivered.
type OutboxConfig struct {
	Mode                string `yaml:"mode" envconfig:"NOTIFY_MODE"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" envconfig:"OUTBOX_POLL_INTERVAL_SECONDS"`
	MaxAttempts         int    `yaml:"max_attempts" envconfig:"OUTBOX_MAX_ATTEMPTS"`
	BatchSize           int    `yaml:"batch_size" envconfig:"OUTBOX_BATCH_SIZE"`
	// EnqueueTimeoutSeconds bounds storing a booking before falling back to direct delivery.
	EnqueueTimeoutSeconds int `yaml:"enqueue_timeout_seconds" envconfig:"OUTBOX_ENQUEUE_TIMEOUT_SECONDS"`
}

// PollInterval returns the sender polling period.
func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// EnqueueTimeout returns the bound on a single outbox insert.
func (o OutboxConfig) EnqueueTimeout() time.Duration {
	return time.Duration(o.EnqueueTimeoutSeconds) * time.Second
}

// Config is the full booking bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Scheduling SchedulingConfig    `yaml:"scheduling"`
	Operator   OperatorConfig      `yaml:"operator"`
	Classifier ClassifierConfig    `yaml:"classifier"`
	Booking    BookingConfig       `yaml:"booking"`
	Outbox     OutboxConfig        `yaml:"outbox"`
	Database   coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// IntentEnabled reports whether the free-text intent flow replaces the structured one.
func (c *Config) IntentEnabled() bool {
	return c.Booking.Mode == ModeIntent
}

// Load reads the YAML file at path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the booking sections and fills defaults.
func (c *Config) Normalize() error {
	s := &c.Scheduling
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		s.BaseURL = "https://api.yclients.com/api/v1"
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 10
	}
	if s.RatePerSecond < 0 {
		return fmt.Errorf("scheduling.rate_per_second must be >= 0")
	}
	if s.RatePerSecond == 0 {
		s.RatePerSecond = 5
	}
	if s.Burst <= 0 {
		s.Burst = 5
	}

	if c.Operator.ChatID == 0 {
		return fmt.Errorf("operator.chat_id is required")
	}

	if c.Classifier.Model == "" {
		c.Classifier.Model = "gpt-4o-mini"
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = 15
	}

	b := &c.Booking
	b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
	switch b.Mode {
	case "":
		b.Mode = ModeStructured
	case ModeStructured:
	case ModeIntent:
		if strings.TrimSpace(c.Classifier.APIKey) == "" {
			return fmt.Errorf("classifier.api_key is required when booking.mode is 'intent'")
		}
	default:
		return fmt.Errorf("invalid booking.mode %q; allowed: structured, intent", b.Mode)
	}
	if b.Mode == ModeStructured && strings.TrimSpace(s.CompanyID) == "" {
		return fmt.Errorf("scheduling.company_id is required when booking.mode is 'structured'")
	}
	if _, err := b.Location(); err != nil {
		return fmt.Errorf("invalid booking.timezone %q: %w", b.Timezone, err)
	}
	if b.SessionTTLMinutes <= 0 {
		b.SessionTTLMinutes = 30
	}
	if b.DaysAhead <= 0 {
		b.DaysAhead = 6
	}

	o := &c.Outbox
	o.Mode = strings.ToLower(strings.TrimSpace(o.Mode))
	switch o.Mode {
	case "":
		o.Mode = DeliveryDirect
	case DeliveryDirect:
	case DeliveryOutbox:
		if !c.Database.Enabled() {
			return fmt.Errorf("outbox.mode 'outbox' requires database.host")
		}
	default:
		return fmt.Errorf("invalid outbox.mode %q; allowed: direct, outbox", o.Mode)
	}
	if o.PollIntervalSeconds <= 0 {
		o.PollIntervalSeconds = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.EnqueueTimeoutSeconds <= 0 {
		o.EnqueueTimeoutSeconds = 5
	}

	c.Database.Normalize()
	return nil
}
