package config

import (
	"time"

	"remindbot/internal/heartbeat"
)

const (
	DefaultPollTimeout       = 10 * time.Second
	DefaultTaskDuration      = 15 * time.Minute
	DefaultToleranceBefore   = 5 * time.Minute
	DefaultToleranceDuring   = 20 * time.Minute
	DefaultInterval          = 60 * time.Second
	DefaultHeartbeatSchedule = heartbeat.DefaultSchedule
	DefaultCalendarID        = "primary"
	DefaultLookahead         = 24 * time.Hour
	DefaultStorageDriver     = "file"
	DefaultStoragePath       = "./state"
)

var (
	DefaultWarnBefore  = []string{"15m"}
	DefaultWarnDuring  = []string{"0m"}
	DefaultWarnOverdue = []string{"15m"}
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if c.Reminders.WarnBefore == nil {
		c.Reminders.WarnBefore = append([]string(nil), DefaultWarnBefore...)
	}
	if c.Reminders.WarnDuring == nil {
		c.Reminders.WarnDuring = append([]string(nil), DefaultWarnDuring...)
	}
	if c.Reminders.WarnOverdue == nil {
		c.Reminders.WarnOverdue = append([]string(nil), DefaultWarnOverdue...)
	}
	if c.Tasks.Recursive == nil {
		c.Tasks.Recursive = boolPtr(true)
	}
	if c.Tasks.Watch == nil {
		c.Tasks.Watch = boolPtr(true)
	}
	if c.Heartbeat.Enabled == nil {
		c.Heartbeat.Enabled = boolPtr(true)
	}
	if c.Heartbeat.Schedule == "" {
		c.Heartbeat.Schedule = DefaultHeartbeatSchedule
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = DefaultCalendarID
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Telegram.GroupLog == 0 {
		c.Telegram.GroupLog = c.Telegram.ChatID
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func boolPtr(v bool) *bool { return &v }

// Enabled reports a defaulted *bool flag.
func Enabled(p *bool) bool { return p == nil || *p }
