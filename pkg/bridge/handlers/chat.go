package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxbridge/voxbridge/pkg/bridge/chat"
)

// ChatEventHandler receives chat-platform webhook deliveries on /chat/events.
// The platform retries aggressively, so anything past basic shape validation
// is accepted with 202 and left to the bridge's own drop rules.
type ChatEventHandler struct {
	Bridge *chat.Bridge
	Logger *slog.Logger
}

type chatEventBody struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
}

func (h ChatEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Bridge == nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "chat bridge is not configured")
		return
	}

	var body chatEventBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid event body")
		return
	}
	if strings.TrimSpace(body.ThreadID) == "" {
		writeJSONError(w, r, http.StatusBadRequest, "threadId is required")
		return
	}
	if strings.TrimSpace(body.MessageID) == "" {
		// Some platforms omit IDs on synthetic events; never dedup those away.
		body.MessageID = "ephemeral_" + uuid.NewString()
	}

	h.Bridge.Handle(r.Context(), chat.Message{
		ThreadID:  body.ThreadID,
		MessageID: body.MessageID,
		SenderID:  body.SenderID,
		Text:      body.Text,
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}
