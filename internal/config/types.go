package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("90s", "15m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Tasks     TasksConfig     `json:"tasks"`
	Reminders RemindersConfig `json:"reminders"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Calendar  CalendarConfig  `json:"calendar"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`

	// PIDFile is written on start and removed on stop when set.
	PIDFile string `json:"pid_file,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// TopicID is the forum thread reminders go to (0 = main chat).
	TopicID     int    `json:"topic_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// GroupLog is the chat that receives forwarded log records. Defaults to
	// ChatID.
	GroupLog int64 `json:"group_log,omitempty"`
}

type TasksConfig struct {
	Folder string `json:"folder"`
	// Recursive includes subfolders. Defaults to true.
	Recursive *bool `json:"recursive,omitempty"`
	// DefaultDuration is used when a task has no end time.
	DefaultDuration string `json:"default_duration,omitempty"`
	// Watch triggers an early rescan on folder changes. Defaults to true.
	Watch *bool `json:"watch,omitempty"`
}

// RemindersConfig controls the reminder engine. A nil offset list takes
// the default; an explicit empty list disables that kind.
type RemindersConfig struct {
	WarnBefore  []string `json:"warn_before"`
	WarnDuring  []string `json:"warn_during"`
	WarnOverdue []string `json:"warn_overdue"`

	ToleranceBefore string `json:"tolerance_before,omitempty"`
	ToleranceDuring string `json:"tolerance_during,omitempty"`
	Interval        string `json:"interval,omitempty"`

	// StrictOffsets rejects offsets that do not match the grammar instead
	// of treating them as zero.
	StrictOffsets  bool    `json:"strict_offsets,omitempty"`
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
}

type HeartbeatConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

type CalendarConfig struct {
	Enabled         bool   `json:"enabled"`
	CalendarID      string `json:"calendar_id,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	TokenFile       string `json:"token_file,omitempty"`
	Lookahead       string `json:"lookahead,omitempty"`
}

// StorageConfig selects the state backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
