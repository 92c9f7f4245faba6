package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxbridge/voxbridge/pkg/bridge/config"
	"github.com/voxbridge/voxbridge/pkg/bridge/lifecycle"
	"github.com/voxbridge/voxbridge/pkg/bridge/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		Draining    bool     `json:"draining"`
		ChatEnabled bool     `json:"chat_enabled"`
		ActiveCalls int      `json:"active_calls"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if h.Config.RealtimeEndpoint == "" {
		issues = append(issues, "realtime endpoint is not configured")
	}
	if h.Config.RealtimeAPIKey == "" {
		issues = append(issues, "realtime api key is not configured")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          ok,
		Draining:    draining,
		ChatEnabled: h.Config.ChatEnabled(),
		ActiveCalls: h.Sessions.Count(),
		Issues:      issues,
	})
}
