// Package handlers holds the HTTP boundary of the bridge: the call socket
// upgrade, the chat webhook, and health endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/bridge/config"
	"github.com/voxbridge/voxbridge/pkg/bridge/lifecycle"
	"github.com/voxbridge/voxbridge/pkg/bridge/mw"
	"github.com/voxbridge/voxbridge/pkg/bridge/realtime"
	"github.com/voxbridge/voxbridge/pkg/bridge/session"
	"github.com/voxbridge/voxbridge/pkg/bridge/sessions"
)

// CallHandler accepts the telephony media socket on /call/stream and runs a
// relay session over it.
type CallHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	// Dial overrides the realtime dialer; nil means dial from Config.
	Dial session.DialFunc
}

func (h CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeJSONError(w, r, http.StatusServiceUnavailable, "bridge is draining")
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	dial := h.Dial
	if dial == nil {
		cfg := realtime.Config{
			Endpoint:     h.Config.RealtimeEndpoint,
			Deployment:   h.Config.RealtimeDeployment,
			APIVersion:   h.Config.RealtimeAPIVersion,
			APIKey:       h.Config.RealtimeAPIKey,
			Voice:        h.Config.Voice,
			Instructions: h.Config.Instructions,
		}
		dial = func(ctx context.Context) (session.RealtimeLeg, error) {
			return realtime.Dial(ctx, cfg)
		}
	}

	sessionID := "call_" + uuid.NewString()
	reqID, _ := mw.RequestIDFrom(r.Context())

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Dial:      dial,
		Logger:    logger.With("request_id", reqID),
		SessionID: sessionID,
		Config: session.Config{
			WriteTimeout:    h.Config.CallWriteTimeout,
			ReadTimeout:     h.Config.CallReadTimeout,
			PingInterval:    h.Config.CallPingInterval,
			MaxMessageBytes: h.Config.CallMaxMessageBytes,
		},
	})
	if err != nil {
		logger.Error("failed to initialize call session", "error", err)
		return
	}

	unregister := h.Sessions.Register(sessionID, s.Close)
	defer unregister()

	_ = s.Run(r.Context())
}
