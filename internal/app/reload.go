package app

import (
	"context"
	"strings"
	"time"

	"dealboard/internal/audio"
	"dealboard/internal/config"
	"dealboard/internal/display"
	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"
	"dealboard/pkg/systemd"
)

// reloadLoop applies committed config changes to the running components.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			next = newest(sub, next)
			a.apply(ctx, last, next)
			last = next
		}
	}
}

// newest coalesces a burst of reloads into the latest one.
func newest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	if next == nil {
		return
	}
	applyEnv(next)
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	if config.RestartRequired(prev, next) {
		a.log.Warn("some config changes need a restart to take effect")
	}

	a.logs.Apply(mapLogConfig(next))

	if anim, fade, err := celebrationDurations(next); err == nil {
		a.engine.SetDurations(anim, fade)
	} else {
		a.log.Warn("celebration durations not applied", logx.Err(err))
	}

	if prev == nil || prev.Celebration.Theme != next.Celebration.Theme {
		theme, _ := overlay.ParseTheme(next.Celebration.Theme)
		a.setTheme(ctx, theme)
	}

	if a.poller != nil {
		timeout, _ := config.DurationOr("backend.timeout", next.Backend.Timeout, 10*time.Second)
		if err := a.poller.Apply(ctx, next.Polling.Schedule, timeout); err != nil {
			a.log.Warn("poll schedule not applied", logx.Err(err))
		}
	}

	if a.player != nil {
		a.player.Apply(audio.Config{Enabled: next.Audio.Enabled, Volume: next.Audio.Volume})
	}
}

// setTheme switches the overlay theme, tells connected displays and
// remembers the choice across restarts.
func (a *App) setTheme(ctx context.Context, theme overlay.Theme) {
	if a.builder.Theme() == theme {
		return
	}
	a.builder.SetTheme(theme)
	a.hub.Publish(display.Message{Type: display.MsgTheme, Theme: theme})
	if a.store != nil {
		if err := a.store.PutKV(ctx, display.ThemeKey, string(theme)); err != nil {
			a.log.Warn("theme not persisted", logx.Err(err))
		}
	}
	a.log.Info("celebration theme changed", logx.String("theme", string(theme)))
}
