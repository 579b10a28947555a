package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pulse/internal/app/server/handlers"
	"pulse/internal/app/server/ws"
	"pulse/internal/config"
	"pulse/internal/core/services"
	"pulse/pkg/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	log       *slog.Logger
	mux       *http.ServeMux
	http      *http.Server
	cfg       *config.Config
	wsHandler *handlers.WSHandler
	gatherer  prometheus.Gatherer
}

func NewServer(
	log *slog.Logger,
	cfg *config.Config,
	managerSvc services.IManagerService,
	gatherer prometheus.Gatherer,
) *Server {
	rt := cfg.Realtime
	s := &Server{
		log: log,
		mux: http.NewServeMux(),
		cfg: cfg,
		wsHandler: handlers.NewWSHandler(managerSvc, ws.Options{
			WriteWait:     rt.WriteWait,
			PongWait:      rt.PongWait,
			MaxFrameBytes: rt.MaxFrameBytes,
			SendBuffer:    rt.SendBuffer,
			InboundBuffer: rt.InboundBuffer,
		}, rt.AllowedOrigins),
		gatherer: gatherer,
	}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Service.Add,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	requireToken := middleware.RequireToken()

	s.mux.HandleFunc("GET /healthz", handlers.Health(s.log))
	if s.cfg.Metrics != nil && s.cfg.Metrics.Enabled {
		s.mux.Handle("GET "+s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.Handle("GET /ws", requireToken(http.HandlerFunc(s.wsHandler.Handler)))
}

// Handler returns the routes wrapped in tracing and request logging.
func (s *Server) Handler() http.Handler {
	logged := middleware.RequestLogger(s.log)(s.mux)
	return middleware.TracerMiddleware(s.cfg.Service.Name)(logged)
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server - start - listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections. Hijacked WebSocket connections are
// not tracked by net/http and must be closed by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
