package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"dealboard/internal/announce"
	"dealboard/internal/audio"
	"dealboard/internal/backend"
	"dealboard/internal/celebration"
	"dealboard/internal/chromakey"
	"dealboard/internal/clientid"
	"dealboard/internal/config"
	"dealboard/internal/display"
	"dealboard/internal/eventbus"
	"dealboard/internal/overlay"
	"dealboard/internal/poller"
	"dealboard/internal/runtime/supervisor"
	"dealboard/internal/storage"
	logx "dealboard/pkg/logx"
	"dealboard/pkg/systemd"

	"github.com/gdamore/tcell/v2"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

// Environment variables that override secrets from the config file.
const (
	EnvBackendToken  = "DEALBOARD_BACKEND_TOKEN"
	EnvTelegramToken = "DEALBOARD_TELEGRAM_TOKEN"
)

const defaultAddr = "127.0.0.1:8090"

type options struct {
	clock    celebration.Clock
	http     *http.Client
	listener net.Listener
	screen   tcell.Screen
	sound    celebration.Sound
	tgSender announce.Sender
}

// Option replaces a collaborator NewApp would otherwise build itself.
type Option func(*options)

func WithClock(c celebration.Clock) Option        { return func(o *options) { o.clock = c } }
func WithHTTPClient(hc *http.Client) Option       { return func(o *options) { o.http = hc } }
func WithListener(ln net.Listener) Option         { return func(o *options) { o.listener = ln } }
func WithScreen(s tcell.Screen) Option            { return func(o *options) { o.screen = s } }
func WithSound(s celebration.Sound) Option        { return func(o *options) { o.sound = s } }
func WithTelegramSender(s announce.Sender) Option { return func(o *options) { o.tgSender = s } }

// App owns every component of the agent and their goroutines.
type App struct {
	cfgm    *config.Manager
	log     logx.Logger
	logs    *logx.Service
	bus     *eventbus.MemBus
	store   storage.Store
	journal Journal
	started time.Time

	clientID  string
	listener  net.Listener
	backend   *backend.Client
	builder   *overlay.Builder
	hub       *display.Hub
	terminal  *display.Terminal
	telegram  *announce.Telegram
	player    *audio.Player
	acker     *celebration.AckWorker
	engine    *celebration.Engine
	presenter *display.Presenter
	poller    *poller.Poller
	loop      *chromakey.Loop
	server    *display.Server

	sup *supervisor.Supervisor
}

// NewApp loads the config at cfgPath and builds the agent. Nothing runs
// until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      eventbus.New(),
		started:  time.Now(),
		listener: o.listener,
	}
	if err := a.build(cfg, o); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, o options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log := a.logs.Logger()

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store, a.journal = st, st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	var kv clientid.KV
	if a.store != nil {
		kv = a.store
	}
	id, created, err := clientid.Resolve(ctx, kv, cfg.Backend.ClientID)
	if err != nil {
		return err
	}
	a.clientID = id
	a.log.Info("panel identified", logx.String("client_id", id), logx.Bool("new", created))

	timeout, err := config.DurationOr("backend.timeout", cfg.Backend.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Backend.BaseURL) != "" {
		bc, err := backend.New(backend.Config{
			BaseURL:  cfg.Backend.BaseURL,
			Token:    cfg.Backend.Token,
			ClientID: id,
			Timeout:  timeout,
		}, o.http)
		if err != nil {
			return err
		}
		a.backend = bc
	}

	photoClient := o.http
	if photoClient == nil {
		photoClient = cleanhttp.DefaultPooledClient()
		photoClient.Timeout = overlay.DefaultLookupTimeout
	}
	photos := &overlay.PhotoResolver{Base: cfg.Celebration.PhotoBase, Client: photoClient}
	a.builder = overlay.NewBuilder(a.initialTheme(ctx, cfg), photos)

	a.hub = display.NewHub(log)
	hosts := display.MultiHost{a.hub}
	if cfg.Terminal.Enabled {
		if o.screen != nil {
			a.terminal = display.NewTerminal(o.screen, log)
		} else if t, err := display.OpenTerminal(log); err != nil {
			a.log.Warn("kiosk terminal unavailable", logx.Err(err))
		} else {
			a.terminal = t
		}
		if a.terminal != nil {
			hosts = append(hosts, a.terminal)
		}
	}
	if tc := cfg.Telegram; tc != nil && tc.Enabled {
		acfg := announce.Config{
			Token:         tc.Token,
			ChatID:        tc.ChatID,
			ThreadID:      tc.ThreadID,
			AnnounceTests: tc.AnnounceTests,
		}
		if o.tgSender != nil {
			a.telegram = announce.NewWithSender(acfg, o.tgSender, log)
		} else if a.telegram, err = announce.New(acfg, log); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		hosts = append(hosts, a.telegram)
	}
	a.presenter = display.NewPresenter(a.builder, hosts, log)

	sound := o.sound
	if sound == nil {
		a.player = audio.NewPlayer(audio.Config{Enabled: cfg.Audio.Enabled, Volume: cfg.Audio.Volume}, log)
		sound = quietWhenDisabled{a.player}
	}

	var acker celebration.Acknowledger
	if a.backend != nil {
		a.acker = celebration.NewAckWorker(celebration.AckConfig{
			QueueSize:  cfg.Ack.QueueSize,
			RatePerSec: cfg.Ack.RatePerSec,
			Timeout:    timeout,
		}, a.backend, a.bus, log)
		acker = a.acker
	}

	anim, fade, err := celebrationDurations(cfg)
	if err != nil {
		return err
	}
	a.engine = celebration.NewEngine(celebration.Options{
		AnimationDuration: anim,
		FadeOut:           fade,
		Presenter:         a.presenter,
		Sound:             sound,
		Acker:             acker,
		Clock:             o.clock,
		Bus:               a.bus,
		Log:               log,
	})

	if cfg.Polling.Enabled && a.backend != nil {
		a.poller = poller.New(poller.Config{
			Schedule: cfg.Polling.Schedule,
			Since:    a.started,
			Timeout:  timeout,
		}, a.backend, a.engine, a.bus, log)
	}

	profiles, err := buildProfiles(cfg.Chromakey)
	if err != nil {
		return err
	}
	mascot := &chromakey.LatestFrame{}
	if cfg.Chromakey.Enabled {
		if err := a.buildMascot(cfg.Chromakey, profiles, mascot, log); err != nil {
			return err
		}
	}

	deps := display.ServerDeps{
		Engine:       a.engine,
		Presenter:    a.presenter,
		Hub:          a.hub,
		Profiles:     profiles,
		Mascot:       mascot,
		Photos:       photos,
		MaxTestBurst: cfg.Celebration.MaxTestBurst,
		Profiler:     cfg.Display.Pprof,
		Status:       a.status,
		Log:          log,
	}
	if a.backend != nil {
		deps.Podium = a.backend
	}
	if a.store != nil {
		deps.History = a.store
		deps.KV = a.store
	}
	addr := strings.TrimSpace(cfg.Display.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	a.server = display.NewServer(addr, deps)
	return nil
}

func (a *App) buildMascot(kc config.ChromakeyConfig, profiles *chromakey.Registry, painter chromakey.Painter, log logx.Logger) error {
	if strings.TrimSpace(kc.FramesDir) == "" {
		return errors.New("chromakey.frames_dir is required when chromakey is enabled")
	}
	fps := kc.FrameRate
	if fps <= 0 {
		fps = 30
	}
	src, err := chromakey.LoadSequence(kc.FramesDir, fps)
	if err != nil {
		return fmt.Errorf("chromakey: %w", err)
	}
	p, err := profiles.Get(kc.Profile)
	if err != nil {
		return err
	}
	replay, err := config.DurationOr("chromakey.replay_delay", kc.ReplayDelay, 8*time.Second)
	if err != nil {
		return err
	}
	a.loop = chromakey.NewLoop(src, painter, p, chromakey.LoopOptions{
		TickRate:    kc.TickRate,
		ReplayDelay: replay,
		AutoPlay:    true,
		Log:         log.With(logx.String("comp", "chromakey")),
	})
	return nil
}

// initialTheme prefers the theme last chosen at runtime over the config file.
func (a *App) initialTheme(ctx context.Context, cfg *config.Config) overlay.Theme {
	theme, _ := overlay.ParseTheme(cfg.Celebration.Theme)
	if a.store == nil {
		return theme
	}
	v, ok, err := a.store.GetKV(ctx, display.ThemeKey)
	if err != nil {
		a.log.Warn("stored theme unreadable", logx.Err(err))
		return theme
	}
	if stored, known := overlay.ParseTheme(v); ok && known {
		return stored
	}
	return theme
}

func buildProfiles(kc config.ChromakeyConfig) (*chromakey.Registry, error) {
	reg := chromakey.NewRegistry()
	for name, pc := range kc.Profiles {
		err := reg.Register(name, chromakey.Override{
			Base:          pc.Base,
			HaloDominance: pc.HaloDominance,
			Tolerance:     pc.Tolerance,
			Target:        pc.Target,
			StrongKey:     pc.StrongKey,
			StrongDom:     pc.StrongDom,
		})
		if err != nil {
			return nil, fmt.Errorf("chromakey.profiles.%s: %w", name, err)
		}
	}
	if _, err := reg.Get(kc.Profile); err != nil {
		return nil, fmt.Errorf("chromakey.profile: %w", err)
	}
	return reg, nil
}

func celebrationDurations(cfg *config.Config) (anim, fade time.Duration, err error) {
	anim, err = config.DurationOr("celebration.animation_duration", cfg.Celebration.AnimationDuration, celebration.DefaultAnimationDuration)
	if err != nil {
		return 0, 0, err
	}
	fade, err = config.DurationOr("celebration.fade_out", cfg.Celebration.FadeOut, celebration.DefaultFadeOut)
	return anim, fade, err
}

// applyEnv fills secrets the config file leaves empty.
func applyEnv(cfg *config.Config) {
	if cfg.Backend.Token == "" {
		cfg.Backend.Token = strings.TrimSpace(os.Getenv(EnvBackendToken))
	}
	if cfg.Telegram != nil && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = strings.TrimSpace(os.Getenv(EnvTelegramToken))
	}
}

// validateLive rejects reloads that would fail when applied.
func validateLive(_ context.Context, cfg *config.Config) error {
	if s := strings.TrimSpace(cfg.Polling.Schedule); s != "" {
		if _, err := poller.ParseSchedule(s); err != nil {
			return fmt.Errorf("polling.schedule: %w", err)
		}
	}
	if _, err := buildProfiles(cfg.Chromakey); err != nil {
		return err
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}

type quietWhenDisabled struct{ p *audio.Player }

func (q quietWhenDisabled) Play(ctx context.Context) error {
	if err := q.p.Play(ctx); err != nil && !errors.Is(err, audio.ErrDisabled) {
		return err
	}
	return nil
}

func (a *App) ClientID() string { return a.clientID }

// Engine exposes the celebration queue, mainly for tests and embedding.
func (a *App) Engine() *celebration.Engine { return a.engine }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(validateLive)

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go("events", func(c context.Context) error {
		defer unsub()
		return a.runEvents(c, events)
	})
	a.sup.Go("display.hub", a.hub.Run)
	if a.terminal != nil {
		a.sup.Go("display.terminal", a.terminal.Run)
	}
	if a.telegram != nil {
		a.sup.GoRestart("announce.telegram", a.telegram.Run, time.Second, 30*time.Second)
	}
	if a.acker != nil {
		a.sup.Go("ack", a.acker.Run)
	}
	if a.loop != nil {
		a.sup.GoRestart("chromakey.loop", a.loop.Run, 500*time.Millisecond, 10*time.Second)
	}
	if a.listener != nil {
		ln := a.listener
		a.sup.Go("http", func(c context.Context) error { return a.server.Serve(c, ln) })
	} else {
		a.sup.Go("http", a.server.Run)
	}
	if a.poller != nil {
		a.sup.GoRestart("poller", a.poller.Run, time.Second, 30*time.Second)
	} else {
		a.log.Warn("polling disabled; only test celebrations will be shown")
	}
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.reload", a.reloadLoop)

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, iv, func() bool { return a.sup.Err() == nil })
		})
	}
	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	}
	_, _ = systemd.Status("panel " + a.clientID)

	a.log.Info("dealboard started",
		logx.String("client_id", a.clientID),
		logx.Bool("polling", a.poller != nil),
		logx.Bool("terminal", a.terminal != nil),
		logx.Bool("telegram", a.telegram != nil),
		logx.Bool("mascot", a.loop != nil),
	)
	return nil
}

// Stop lets the celebration on screen stay as is, flushes pending
// acknowledgments within ctx and shuts every goroutine down.
func (a *App) Stop(ctx context.Context) error {
	_, _ = systemd.Stopping()
	a.engine.Close()
	if a.acker != nil {
		if err := a.acker.Flush(ctx); err != nil {
			a.log.Warn("acknowledgments not flushed", logx.Err(err))
		}
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	a.log.Info("dealboard stopped")
	a.close()
	return err
}

func (a *App) close() {
	if a.player != nil {
		a.player.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	_ = a.logs.Close()
}

func (a *App) status() map[string]any {
	out := map[string]any{
		"client_id":   a.clientID,
		"started_at":  a.started,
		"bus_dropped": a.bus.Dropped(),
		"config_rev":  a.cfgm.Revision(),
	}
	if a.sup != nil {
		out["tasks"] = a.sup.Snapshot()
	}
	if a.poller != nil {
		out["poller"] = a.poller.Stats()
	}
	if a.loop != nil {
		out["mascot"] = a.loop.Stats()
	}
	if a.telegram != nil {
		out["telegram"] = a.telegram.Stats()
	}
	if a.player != nil {
		if err := a.player.LastError(); err != nil {
			out["audio_error"] = err.Error()
		}
	}
	return out
}
