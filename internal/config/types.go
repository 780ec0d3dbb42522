package config

// Config is the on-disk agent configuration.
//
// Durations are Go duration strings ("500ms", "3s", "1m") or bare seconds.
type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Backend     BackendConfig     `json:"backend"`
	Polling     PollingConfig     `json:"polling"`
	Celebration CelebrationConfig `json:"celebration"`
	Ack         AckConfig         `json:"ack"`
	Display     DisplayConfig     `json:"display"`
	Terminal    TerminalConfig    `json:"terminal"`
	Audio       AudioConfig       `json:"audio"`
	Chromakey   ChromakeyConfig   `json:"chromakey"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Telegram    *TelegramConfig   `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// BackendConfig points at the sales dashboard API.
//
// Token is optional and may also come from DEALBOARD_BACKEND_TOKEN.
type BackendConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"` // default "10s"

	// ClientID pins the panel identifier instead of the stored one.
	ClientID string `json:"client_id,omitempty"`
}

// PollingConfig controls the pending-deal poller.
//
// Schedule accepts a cron spec ("*/5 * * * * *"), "@every 3s", "interval:3s"
// or a plain duration ("3s"). Default: every 3s.
type PollingConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

type CelebrationConfig struct {
	AnimationDuration string `json:"animation_duration,omitempty"` // default "30s"
	FadeOut           string `json:"fade_out,omitempty"`           // default "500ms"
	Theme             string `json:"theme,omitempty"`              // black-november|natal|padrao
	PhotoBase         string `json:"photo_base,omitempty"`         // URL prefix or local directory
	MaxTestBurst      int    `json:"max_test_burst,omitempty"`     // default 5
}

// AckConfig controls the acknowledgment worker.
type AckConfig struct {
	QueueSize  int `json:"queue_size,omitempty"`   // default 64
	RatePerSec int `json:"rate_per_sec,omitempty"` // default 5
}

type DisplayConfig struct {
	Addr  string `json:"addr"`            // default "127.0.0.1:8090"
	Pprof bool   `json:"pprof,omitempty"` // mount net/http/pprof under /debug
}

type TerminalConfig struct {
	Enabled bool `json:"enabled"`
}

type AudioConfig struct {
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume,omitempty"` // beep volume offset, base 2
}

// ChromakeyConfig controls the mascot loop.
//
// Profiles overrides built-in profile thresholds by name.
type ChromakeyConfig struct {
	Enabled     bool                     `json:"enabled"`
	FramesDir   string                   `json:"frames_dir,omitempty"`
	FrameRate   int                      `json:"frame_rate,omitempty"`   // source fps, default 30
	TickRate    int                      `json:"tick_rate,omitempty"`    // redraw Hz, default 60
	ReplayDelay string                   `json:"replay_delay,omitempty"` // default "8s"
	Profile     string                   `json:"profile,omitempty"`      // default "green"
	Profiles    map[string]ProfileConfig `json:"profiles,omitempty"`
}

// ProfileConfig overrides thresholds of a built-in profile. Zero fields keep
// the built-in value.
type ProfileConfig struct {
	Base          string  `json:"base,omitempty"`
	HaloDominance float64 `json:"halo_dominance,omitempty"`
	Tolerance     float64 `json:"tolerance,omitempty"`
	Target        string  `json:"target,omitempty"` // "#rrggbb"
	StrongKey     float64 `json:"strong_key,omitempty"`
	StrongDom     float64 `json:"strong_dominance,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dealboard.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"` // or DEALBOARD_TELEGRAM_TOKEN
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`

	// AnnounceTests also posts test celebrations to the chat.
	AnnounceTests bool `json:"announce_tests,omitempty"`
}
