package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/heartbeat"
	"remindbot/internal/reminder"
)

// Timings are the parsed duration fields.
type Timings struct {
	PollTimeout     time.Duration
	DefaultDuration time.Duration
	ToleranceBefore time.Duration
	ToleranceDuring time.Duration
	Interval        time.Duration
	Lookahead       time.Duration
	BusyTimeout     time.Duration
}

// Timings parses every duration field, substituting defaults for empty or
// zero values.
func (c *Config) Timings() (Timings, error) {
	var (
		t    Timings
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	parse(&t.PollTimeout, "telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	parse(&t.DefaultDuration, "tasks.default_duration", c.Tasks.DefaultDuration, DefaultTaskDuration)
	parseZero := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := ParseDurationOrDefaultZero(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	parseZero(&t.ToleranceBefore, "reminders.tolerance_before", c.Reminders.ToleranceBefore, DefaultToleranceBefore)
	parseZero(&t.ToleranceDuring, "reminders.tolerance_during", c.Reminders.ToleranceDuring, DefaultToleranceDuring)
	parse(&t.Interval, "reminders.interval", c.Reminders.Interval, DefaultInterval)
	parse(&t.Lookahead, "calendar.lookahead", c.Calendar.Lookahead, DefaultLookahead)
	parse(&t.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout, 0)
	return t, errors.Join(errs...)
}

// Offsets returns the configured offset lists.
func (c *Config) Offsets() reminder.Offsets {
	return reminder.Offsets{
		Before:  c.Reminders.WarnBefore,
		During:  c.Reminders.WarnDuring,
		Overdue: c.Reminders.WarnOverdue,
	}
}

// Validate checks a defaulted config. It returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, a ...any) { errs = append(errs, fmt.Errorf(format, a...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		add("telegram.chat_id is required")
	}
	if strings.TrimSpace(c.Tasks.Folder) == "" && !c.Calendar.Enabled {
		add("tasks.folder is required (or enable calendar)")
	}
	if c.Calendar.Enabled {
		if c.Calendar.CredentialsFile == "" {
			add("calendar.credentials_file is required when calendar is enabled")
		}
		if c.Calendar.TokenFile == "" {
			add("calendar.token_file is required when calendar is enabled")
		}
	}
	if _, err := c.Timings(); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.SendRatePerSec < 0 {
		add("reminders.send_rate_per_sec must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if Enabled(c.Heartbeat.Enabled) {
		if _, err := heartbeat.ParseSchedule(c.Heartbeat.Schedule); err != nil {
			add("heartbeat.schedule: %w", err)
		}
	}
	if c.Reminders.StrictOffsets {
		for _, bad := range c.Offsets().Invalid() {
			add("reminders: invalid offset %s", bad)
		}
	}
	return errors.Join(errs...)
}

// Warnings lists non-fatal problems worth logging at startup.
func (c *Config) Warnings() []string {
	var out []string
	if !c.Reminders.StrictOffsets {
		for _, bad := range c.Offsets().Invalid() {
			out = append(out, "offset "+bad+" does not match <n>m|<n>h and is treated as 0")
		}
	}
	if t, err := c.Timings(); err == nil {
		if t.ToleranceBefore == 0 && len(c.Reminders.WarnBefore) > 0 {
			out = append(out, "reminders.tolerance_before is 0: before reminders only fire when a pass lands on their exact time")
		}
		if t.ToleranceDuring == 0 && len(c.Reminders.WarnDuring) > 0 {
			out = append(out, "reminders.tolerance_during is 0: during reminders only fire when a pass lands on their exact time")
		}
	}
	if !c.Logging.Console && !c.Logging.File.Enabled {
		out = append(out, "console and file logging both disabled")
	}
	return out
}
