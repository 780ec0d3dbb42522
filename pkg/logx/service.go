package logx

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultFile is used when file logging is on without a path.
const DefaultFile = "./dealboard.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
}

// Service owns the log sinks and lets them change at runtime.
type Service struct {
	console io.Writer

	mu   sync.Mutex
	file *os.File
	cur  atomic.Pointer[zerolog.Logger]
}

// New builds the sinks described by cfg and returns a Logger bound to them.
func New(cfg Config) (*Service, Logger) {
	s := newService(os.Stdout)
	s.Apply(cfg)
	return s, s.Logger()
}

func newService(console io.Writer) *Service {
	s := &Service{console: console}
	zl := zerolog.Nop()
	s.cur.Store(&zl)
	return s
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) load() zerolog.Logger { return *s.cur.Load() }

// Apply swaps level and sinks. The previous log file is closed only after
// the new logger is in place.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sinks   []io.Writer
		file    *os.File
		openErr error
		path    string
	)
	if cfg.File.Enabled {
		path = strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFile
		}
		file, openErr = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if openErr == nil {
			sinks = append(sinks, zerolog.SyncWriter(file))
		}
	}
	if cfg.Console || len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(s.console))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.cur.Store(&zl)

	old := s.file
	s.file = file
	if old != nil {
		_ = old.Close()
	}
	if openErr != nil {
		zl.Error().Str("path", path).Err(openErr).Msg("log file unavailable, console only")
	}
}

// Close releases the log file. Later lines go to the console only.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	zl := zerolog.New(consoleWriter(s.console)).Level(s.load().GetLevel()).With().Timestamp().Logger()
	s.cur.Store(&zl)
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   "15:04:05.000",
		FormatCaller: plainCaller,
	}
}

func plainCaller(i any) string {
	s, _ := i.(string)
	return s
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
