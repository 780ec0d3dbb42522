// Package systemd reports service state to the systemd manager when the
// agent runs as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

func Ready() (bool, error)     { return notify(false, daemon.SdNotifyReady) }
func Stopping() (bool, error)  { return notify(false, daemon.SdNotifyStopping) }
func Reloading() (bool, error) { return notify(false, daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) (bool, error) { return notify(false, "STATUS="+msg) }

// WatchdogInterval is the keep-alive period, or 0 when the unit has no
// WatchdogSec. Pings go out at half the configured timeout.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings the manager every interval until ctx is done.
// healthy is consulted before each ping; a false answer skips it so systemd
// restarts a wedged process.
func Watchdog(ctx context.Context, interval time.Duration, healthy func() bool) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
