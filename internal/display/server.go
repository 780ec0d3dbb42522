package display

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/chromakey"
	"dealboard/internal/leaderboard"
	"dealboard/internal/overlay"
	"dealboard/internal/storage"
	logx "dealboard/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ThemeKey is the storage key for the persisted celebration theme.
const ThemeKey = "celebration_theme"

const (
	maxUploadBytes  = 16 << 20
	maxUploadSide   = 4096
	defaultTestMax  = 5
	historyDefault  = 50
	historyMaxLimit = 500
)

type Celebrations interface {
	Enqueue(n celebration.Notification) bool
	Snapshot() celebration.Snapshot
	Find(id celebration.ID) (celebration.Notification, bool)
	State(id celebration.ID) celebration.State
}

type PodiumSource interface {
	FetchPodium(ctx context.Context, kind leaderboard.Kind, period, pipeline string) (leaderboard.Podium, error)
}

type History interface {
	RecentPresentations(ctx context.Context, limit int) ([]storage.PresentationEntry, error)
}

type KV interface {
	GetKV(ctx context.Context, key string) (string, bool, error)
	PutKV(ctx context.Context, key, value string) error
}

// ServerDeps wires the HTTP surface. Nil collaborators disable their routes
// with 503.
type ServerDeps struct {
	Engine    Celebrations
	Presenter *Presenter
	Hub       *Hub
	Profiles  *chromakey.Registry
	Mascot    *chromakey.LatestFrame
	Podium    PodiumSource
	History   History
	KV        KV
	Photos    *overlay.PhotoResolver

	MaxTestBurst int
	// Profiler mounts the runtime profiler under /debug.
	Profiler bool
	// Status adds extra fields to /healthz.
	Status func() map[string]any
	Log    logx.Logger
}

type Server struct {
	addr string
	deps ServerDeps
	log  logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewServer(addr string, deps ServerDeps) *Server {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.MaxTestBurst <= 0 {
		deps.MaxTestBurst = defaultTestMax
	}
	seed := uint64(time.Now().UnixNano())
	return &Server{
		addr: addr,
		deps: deps,
		log:  log.With(logx.String("comp", "http")),
		rng:  rand.New(rand.NewPCG(seed, seed>>7|1)),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Hub == nil {
			http.Error(w, "display hub disabled", http.StatusServiceUnavailable)
			return
		}
		s.deps.Hub.ServeWS(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/celebrations", func(r chi.Router) {
			r.Post("/test", s.handleTestCelebration)
			r.Get("/theme", s.handleGetTheme)
			r.Post("/theme", s.handleSetTheme)
			r.Get("/history", s.handleHistory)
			r.Get("/{id}/card.png", s.handleCard)
		})
		r.Post("/chromakey", s.handleChromakey)
		r.Get("/mascot/frame.png", s.handleMascotFrame)
		r.Get("/podium", s.handlePodium)
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		_ = srv.Close()
	}
	<-errCh
	s.log.Info("http stopped")
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.deps.Engine != nil {
		out["celebration"] = s.deps.Engine.Snapshot()
	}
	if s.deps.Hub != nil {
		out["displays"] = s.deps.Hub.Clients()
	}
	if s.deps.Status != nil {
		for k, v := range s.deps.Status() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTestCelebration(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		http.Error(w, "celebrations disabled", http.StatusServiceUnavailable)
		return
	}
	n := 1
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > s.deps.MaxTestBurst {
			http.Error(w, fmt.Sprintf("n must be 1..%d", s.deps.MaxTestBurst), http.StatusBadRequest)
			return
		}
		n = parsed
	}
	var o celebration.SyntheticOverrides
	if r.ContentLength != 0 {
		dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid overrides: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	ids := make([]celebration.ID, 0, n)
	for i := 0; i < n; i++ {
		s.rngMu.Lock()
		note := celebration.Synthetic(time.Now(), s.rng, o)
		s.rngMu.Unlock()
		if s.deps.Engine.Enqueue(note) {
			ids = append(ids, note.ID)
		}
	}
	s.log.Info("test celebration injected", logx.Int("count", len(ids)))
	writeJSON(w, http.StatusAccepted, map[string]any{"ids": ids})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	id := celebration.ID(chi.URLParam(r, "id"))
	var (
		o  overlay.Overlay
		ok bool
	)
	if s.deps.Presenter != nil {
		o, ok = s.deps.Presenter.Overlay(id)
	}
	if !ok && s.deps.Engine != nil && s.deps.Presenter != nil {
		var n celebration.Notification
		if n, ok = s.deps.Engine.Find(id); ok {
			o = s.deps.Presenter.Builder().Build(r.Context(), n)
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	b, err := chromakey.EncodePNG(o.Card())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, b)
}

type themeBody struct {
	Theme overlay.Theme `json:"theme"`
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presenter == nil {
		http.Error(w, "display disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: s.deps.Presenter.Builder().Theme()})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presenter == nil {
		http.Error(w, "display disabled", http.StatusServiceUnavailable)
		return
	}
	var body themeBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	theme, ok := overlay.ParseTheme(string(body.Theme))
	if !ok {
		http.Error(w, "unknown theme", http.StatusBadRequest)
		return
	}
	s.deps.Presenter.Builder().SetTheme(theme)
	if s.deps.KV != nil {
		if err := s.deps.KV.PutKV(r.Context(), ThemeKey, string(theme)); err != nil {
			s.log.Warn("theme not persisted", logx.Err(err))
		}
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(Message{Type: MsgTheme, Theme: theme})
	}
	s.log.Info("celebration theme changed", logx.String("theme", string(theme)))
	writeJSON(w, http.StatusOK, themeBody{Theme: theme})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		http.Error(w, "storage disabled", http.StatusServiceUnavailable)
		return
	}
	limit := historyDefault
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, historyMaxLimit)
	}
	entries, err := s.deps.History.RecentPresentations(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []storage.PresentationEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleChromakey(w http.ResponseWriter, r *http.Request) {
	reg := s.deps.Profiles
	if reg == nil {
		reg = chromakey.NewRegistry()
	}
	p, err := reg.Get(r.URL.Query().Get("profile"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		status := http.StatusBadRequest
		if tooBig := new(http.MaxBytesError); errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.Width > maxUploadSide || cfg.Height > maxUploadSide {
		http.Error(w, fmt.Sprintf("image %dx%d exceeds %dx%d", cfg.Width, cfg.Height, maxUploadSide, maxUploadSide), http.StatusRequestEntityTooLarge)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}
	b, err := chromakey.EncodePNG(chromakey.CompositeImage(img, p))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, b)
}

func (s *Server) handleMascotFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Mascot == nil {
		http.NotFound(w, r)
		return
	}
	b, ok, err := s.deps.Mascot.PNG()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writePNG(w, b)
}

func (s *Server) handlePodium(w http.ResponseWriter, r *http.Request) {
	if s.deps.Podium == nil {
		http.Error(w, "backend disabled", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	kind, err := leaderboard.ParseKind(q.Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	period := strings.TrimSpace(q.Get("periodo"))
	if period == "" {
		period = "semana"
	}
	p, err := s.deps.Podium.FetchPodium(r.Context(), kind, period, strings.TrimSpace(q.Get("pipeline")))
	if err != nil {
		s.log.Warn("podium fetch failed", logx.String("kind", string(kind)), logx.Err(err))
		http.Error(w, "podium unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"periodo":  p.Period,
		"pipeline": p.Pipeline,
		"cards":    leaderboard.Cards(r.Context(), p, s.deps.Photos),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	_, _ = w.Write(b)
}
