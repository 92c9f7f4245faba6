package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultInstructions = "You are a helpful voice assistant. Answer briefly and conversationally. Expand numbers, symbols, and abbreviations for speech."

type Config struct {
	Addr string

	// Realtime speech endpoint.
	RealtimeEndpoint   string
	RealtimeDeployment string
	RealtimeAPIVersion string
	RealtimeAPIKey     string
	Voice              string
	Instructions       string

	// Answer backend for the chat bridge. Empty disables /chat/events.
	QueryBaseURL string
	QueryTimeout time.Duration
	ChatReplyURL string
	BotID        string
	DedupTTL     time.Duration

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Call socket tuning.
	CallWriteTimeout    time.Duration
	CallReadTimeout     time.Duration
	CallPingInterval    time.Duration
	CallMaxMessageBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXBRIDGE_ADDR", ":8080"),
		RealtimeEndpoint:    strings.TrimSpace(os.Getenv("VOXBRIDGE_REALTIME_ENDPOINT")),
		RealtimeDeployment:  strings.TrimSpace(os.Getenv("VOXBRIDGE_REALTIME_DEPLOYMENT")),
		RealtimeAPIVersion:  envOr("VOXBRIDGE_REALTIME_API_VERSION", "2024-10-01-preview"),
		RealtimeAPIKey:      strings.TrimSpace(os.Getenv("VOXBRIDGE_REALTIME_API_KEY")),
		Voice:               envOr("VOXBRIDGE_VOICE", "alloy"),
		Instructions:        envOr("VOXBRIDGE_INSTRUCTIONS", defaultInstructions),
		QueryBaseURL:        strings.TrimSpace(os.Getenv("VOXBRIDGE_QUERY_BASE_URL")),
		QueryTimeout:        envDurationOr("VOXBRIDGE_QUERY_TIMEOUT", 30*time.Second),
		ChatReplyURL:        strings.TrimSpace(os.Getenv("VOXBRIDGE_CHAT_REPLY_URL")),
		BotID:               strings.TrimSpace(os.Getenv("VOXBRIDGE_BOT_ID")),
		DedupTTL:            envDurationOr("VOXBRIDGE_CHAT_DEDUP_TTL", 5*time.Minute),
		CORSAllowedOrigins:  make(map[string]struct{}),
		CallWriteTimeout:    envDurationOr("VOXBRIDGE_CALL_WRITE_TIMEOUT", 5*time.Second),
		CallReadTimeout:     envDurationOr("VOXBRIDGE_CALL_READ_TIMEOUT", 60*time.Second),
		CallPingInterval:    envDurationOr("VOXBRIDGE_CALL_PING_INTERVAL", 15*time.Second),
		CallMaxMessageBytes: envInt64Or("VOXBRIDGE_CALL_MAX_MESSAGE_BYTES", 1<<20),
		ReadHeaderTimeout:   envDurationOr("VOXBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOXBRIDGE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.RealtimeEndpoint == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_REALTIME_ENDPOINT must be set")
	}
	if cfg.RealtimeAPIKey == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_REALTIME_API_KEY must be set")
	}
	if cfg.QueryBaseURL != "" && cfg.ChatReplyURL == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_CHAT_REPLY_URL must be set when VOXBRIDGE_QUERY_BASE_URL is set")
	}
	if cfg.QueryTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_QUERY_TIMEOUT must be > 0")
	}
	if cfg.DedupTTL <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CHAT_DEDUP_TTL must be > 0")
	}
	if cfg.CallWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CALL_WRITE_TIMEOUT must be > 0")
	}
	if cfg.CallReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CALL_READ_TIMEOUT must be > 0")
	}
	if cfg.CallPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CALL_PING_INTERVAL must be > 0")
	}
	if cfg.CallMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CALL_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// ChatEnabled reports whether the chat bridge has an answer backend to talk to.
func (c Config) ChatEnabled() bool {
	return strings.TrimSpace(c.QueryBaseURL) != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
