// Package server assembles the bridge's routes and middleware chain.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/pkg/bridge/chat"
	"github.com/voxbridge/voxbridge/pkg/bridge/config"
	"github.com/voxbridge/voxbridge/pkg/bridge/handlers"
	"github.com/voxbridge/voxbridge/pkg/bridge/lifecycle"
	"github.com/voxbridge/voxbridge/pkg/bridge/mw"
	"github.com/voxbridge/voxbridge/pkg/bridge/session"
	"github.com/voxbridge/voxbridge/pkg/bridge/sessions"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle  *lifecycle.Lifecycle
	sessions   *sessions.Tracker
	chatBridge *chat.Bridge

	// dial overrides the realtime dialer; nil means the call handler
	// dials the configured endpoint.
	dial session.DialFunc
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	return newServer(cfg, logger, nil)
}

func newServer(cfg config.Config, logger *slog.Logger, dial session.DialFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: cfg.QueryTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
		dial:      dial,
	}

	if cfg.ChatEnabled() {
		s.chatBridge = chat.NewBridge(chat.BridgeDeps{
			Store:     chat.NewMemoryStore(cfg.DedupTTL),
			Backend:   chat.NewQueryClient(cfg.QueryBaseURL, httpClient),
			Responder: chat.NewHTTPResponder(cfg.ChatReplyURL, httpClient),
			BotID:     cfg.BotID,
			Logger:    logger,
		})
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})

	s.mux.Handle("/call/stream", handlers.CallHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Dial:      s.dial,
	})

	s.mux.Handle("/chat/events", handlers.ChatEventHandler{
		Bridge: s.chatBridge,
		Logger: s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so new calls are refused while shutdown drains
// the active ones.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WaitCalls blocks until every active call has ended or ctx expires.
func (s *Server) WaitCalls(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelCalls force-closes the calls still running.
func (s *Server) CancelCalls() int {
	return s.sessions.CancelAll()
}
