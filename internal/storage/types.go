package storage

import (
	"errors"
	"time"

	"remindbot/internal/reminder"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

type Config struct {
	Driver string
	// Path is a directory for the file driver and a database file for sqlite.
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// LegacyChatID is assigned to handles stored as a bare message id.
	LegacyChatID int64
}

// Store is the durable state used by the reminder engine and the
// completion handler.
type Store interface {
	reminder.Store
	Close() error
}
