// Package systemd reports service state to the service manager over the
// sd_notify socket. Every call is a no-op outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remindbot/pkg/logx"
)

// Notify sends raw sd_notify assignments. sent is false when NOTIFY_SOCKET
// is not set.
func Notify(state string) (sent bool, err error) {
	return daemon.SdNotify(false, state)
}

func Ready(status string) (bool, error) {
	if status == "" {
		return Notify(daemon.SdNotifyReady)
	}
	return Notify(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

func Stopping() (bool, error) { return Notify(daemon.SdNotifyStopping) }

func Status(status string) (bool, error) { return Notify("STATUS=" + status) }

// Watchdog pings the manager at half the configured WatchdogSec until ctx
// is done. A ping is skipped while healthy reports false, so a stuck
// process gets restarted. It returns immediately when no watchdog is
// configured.
func Watchdog(ctx context.Context, healthy func() bool, log logx.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	log.Debug("watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				log.Warn("watchdog ping skipped; service unhealthy")
				continue
			}
			if _, err := Notify(daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog ping failed", logx.Err(err))
			}
		}
	}
}
