package config

import (
	"reflect"
	"strings"

	logx "dealboard/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Backend.BaseURL) != strings.TrimSpace(newCfg.Backend.BaseURL) ||
		oldCfg.Backend.Timeout != newCfg.Backend.Timeout ||
		(oldCfg.Backend.Token != "") != (newCfg.Backend.Token != "") {
		changed = append(changed, "backend")
		attrs = append(attrs,
			logx.String("backend.base_url", strings.TrimSpace(newCfg.Backend.BaseURL)),
			logx.Bool("backend.token_set", newCfg.Backend.Token != ""),
		)
	}

	if oldCfg.Polling != newCfg.Polling {
		changed = append(changed, "polling")
		attrs = append(attrs,
			logx.Bool("polling.enabled", newCfg.Polling.Enabled),
			logx.String("polling.schedule", newCfg.Polling.Schedule),
		)
	}

	if oldCfg.Celebration != newCfg.Celebration {
		changed = append(changed, "celebration")
		attrs = append(attrs, logx.String("celebration.theme", newCfg.Celebration.Theme))
	}

	simple := []struct {
		name string
		a, b any
	}{
		{"ack", oldCfg.Ack, newCfg.Ack},
		{"display", oldCfg.Display, newCfg.Display},
		{"terminal", oldCfg.Terminal, newCfg.Terminal},
		{"audio", oldCfg.Audio, newCfg.Audio},
		{"chromakey", oldCfg.Chromakey, newCfg.Chromakey},
		{"storage", oldCfg.Storage, newCfg.Storage},
	}
	for _, s := range simple {
		if !reflect.DeepEqual(s.a, s.b) {
			changed = append(changed, s.name)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot == nil {
		ot = &TelegramConfig{}
	}
	if nt == nil {
		nt = &TelegramConfig{}
	}
	if ot.Enabled != nt.Enabled || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID || (ot.Token != "") != (nt.Token != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Bool("telegram.token_set", nt.Token != ""),
		)
	}

	return changed, attrs
}

// RestartRequired reports whether a change cannot be applied live.
// Everything bound at startup (listener, storage, backend client, optional
// hosts and the mascot source) needs a restart.
func RestartRequired(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Display != newCfg.Display ||
		!reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) ||
		oldCfg.Backend != newCfg.Backend ||
		oldCfg.Celebration.PhotoBase != newCfg.Celebration.PhotoBase ||
		oldCfg.Celebration.MaxTestBurst != newCfg.Celebration.MaxTestBurst ||
		oldCfg.Polling.Enabled != newCfg.Polling.Enabled ||
		oldCfg.Terminal != newCfg.Terminal ||
		!reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) ||
		!reflect.DeepEqual(oldCfg.Chromakey, newCfg.Chromakey)
}
