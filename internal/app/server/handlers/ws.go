package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"pulse/internal/app/server/ws"
	"pulse/internal/core/domain"
	"pulse/internal/core/services"
	"pulse/pkg/logging"
	"pulse/pkg/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	manager  services.IManagerService
	upgrader websocket.Upgrader
	opts     ws.Options
}

// NewWSHandler builds the upgrade handler. An empty allowedOrigins accepts
// any origin.
func NewWSHandler(manager services.IManagerService, opts ws.Options, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager: manager,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	token, ok := middleware.TokenFrom(r.Context())
	if !ok {
		log.WarnContext(r.Context(), "ws handler - token - missing")
		http.Error(w, "credential token required", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.WarnContext(r.Context(), "ws handler - upgrade - failed", logging.Err(err))
		return
	}

	client := ws.NewClient(log, conn, s.opts)
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("connection.id", string(client.ID())))
	log = log.With(logging.Connection(client.ID()))
	log.InfoContext(r.Context(), "ws handler - upgrade - connection established")

	// The session outlives the request context once the connection is hijacked.
	ctx := logging.WithContext(context.WithoutCancel(r.Context()), log)
	err = s.manager.Serve(ctx, client, token, client.Inbound())
	switch {
	case err == nil:
		log.InfoContext(ctx, "ws handler - serve - connection closed")
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, services.ErrShuttingDown):
		log.InfoContext(ctx, "ws handler - serve - connection refused", logging.Err(err))
	default:
		log.ErrorContext(ctx, "ws handler - serve - failed", logging.Err(err))
	}
}

// Health reports liveness.
func Health(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.WarnContext(r.Context(), "health handler - write - failed", logging.Err(err))
		}
	}
}
