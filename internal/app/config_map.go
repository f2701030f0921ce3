package app

import (
	"path/filepath"
	"strings"

	"remindbot/internal/config"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const sqliteFileName = "remindbot.db"

// mapStorageConfig turns the storage section into a storage.Config. For
// sqlite a directory path gets a database file name appended.
func mapStorageConfig(cfg *config.Config, t config.Timings) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = config.DefaultStoragePath
	}
	if (driver == "sqlite" || driver == "sqlite3") && filepath.Ext(path) == "" {
		path = filepath.Join(path, sqliteFileName)
	}
	return storage.Config{
		Driver:       driver,
		Path:         path,
		BusyTimeout:  t.BusyTimeout,
		LegacyChatID: cfg.Telegram.ChatID,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.GroupLog,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}
