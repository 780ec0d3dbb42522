package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalid = errors.New("invalid config")

var knownThemes = map[string]bool{"": true, "black-november": true, "natal": true, "padrao": true}

var knownDrivers = map[string]bool{
	"": true, "none": true, "file": true,
	"sqlite": true, "sqlite3": true,
	"postgres": true, "postgresql": true,
}

// Validate checks values that would otherwise fail late at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if cfg.Polling.Enabled {
		raw := strings.TrimSpace(cfg.Backend.BaseURL)
		if raw == "" {
			bad("backend.base_url is required when polling is enabled")
		} else if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			bad("backend.base_url %q is not an absolute URL", raw)
		}
	}

	durations := map[string]string{
		"backend.timeout":                cfg.Backend.Timeout,
		"celebration.animation_duration": cfg.Celebration.AnimationDuration,
		"celebration.fade_out":           cfg.Celebration.FadeOut,
		"chromakey.replay_delay":         cfg.Chromakey.ReplayDelay,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDuration(path, raw); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
		}
	}

	if !knownThemes[strings.TrimSpace(cfg.Celebration.Theme)] {
		bad("celebration.theme %q is unknown", cfg.Celebration.Theme)
	}
	if cfg.Celebration.MaxTestBurst < 0 {
		bad("celebration.max_test_burst must be >= 0")
	}
	if cfg.Ack.QueueSize < 0 || cfg.Ack.RatePerSec < 0 {
		bad("ack.queue_size and ack.rate_per_sec must be >= 0")
	}
	if cfg.Chromakey.FrameRate < 0 || cfg.Chromakey.TickRate < 0 {
		bad("chromakey.frame_rate and chromakey.tick_rate must be >= 0")
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		if !knownDrivers[d] {
			bad("storage.driver %q is unknown", cfg.Storage.Driver)
		}
		if strings.HasPrefix(d, "postgres") && strings.TrimSpace(cfg.Storage.DSN) == "" {
			bad("storage.dsn is required for postgres")
		}
	}
	if t := cfg.Telegram; t != nil && t.Enabled && t.ChatID == 0 {
		bad("telegram.chat_id is required when telegram is enabled")
	}
	return errors.Join(errs...)
}
