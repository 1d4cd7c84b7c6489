// Package server exposes the HTTP command ingestion and status endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tiltbot/internal/sim"
	"tiltbot/internal/telemetry"
)

const shutdownTimeout = time.Second

// StatusSource exposes the most recent simulation frame.
type StatusSource interface {
	Latest() (sim.Frame, bool)
}

// Config holds server configuration.
type Config struct {
	Addr string
	// CommandRate limits /command requests per second. Zero disables it.
	CommandRate  float64
	CommandBurst int

	Store  *sim.Store
	Status StatusSource
	Hub    *telemetry.Hub
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Server wraps the HTTP server and router.
type Server struct {
	cfg     Config
	router  *chi.Mux
	limiter *rate.Limiter
}

// New returns an initialized server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server requires a command store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	s := &Server{cfg: cfg}
	if cfg.CommandRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), cfg.CommandBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLogger(cfg.Logger))

	r.Get("/", s.statusPage)
	r.Get("/api/status", s.statusJSON)
	r.With(s.limit).Get("/command", s.command)
	r.With(s.limit).Post("/command", s.command)
	if cfg.Hub != nil {
		r.Get("/ws/telemetry", cfg.Hub.TelemetryHandler())
		r.Get("/ws/control", cfg.Hub.ControlHandler())
	}
	s.router = r
	return s, nil
}

// Router returns the underlying router, useful for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Start listens and serves until ctx is done. A bind failure is returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxTo, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.cfg.Hub != nil {
			s.cfg.Hub.Close()
		}
		_ = srv.Shutdown(ctxTo)
	}()

	s.cfg.Logger.Infow("command server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.cfg.Logger.Warnw("command rate limited", "remote", r.RemoteAddr)
			http.Error(w, "too many commands", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debugw("http request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
