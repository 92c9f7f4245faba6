package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Fixed user-facing texts. The bridge relays these instead of surfacing
// backend faults into the chat thread.
const (
	apologyText  = "Sorry, I ran into a problem answering that. Please try again."
	fallbackText = "I don't have an answer for that right now."
)

// Message is one inbound chat-thread event.
type Message struct {
	ThreadID  string
	MessageID string
	SenderID  string
	Text      string
}

// Responder posts an answer back into the originating thread.
type Responder interface {
	Reply(ctx context.Context, threadID, text string) error
}

// Backend answers questions. *QueryClient satisfies it.
type Backend interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Bridge forwards thread messages to the backend at most once per message ID.
type Bridge struct {
	store     Store
	backend   Backend
	responder Responder
	botID     string
	logger    *slog.Logger
	now       func() time.Time
}

type BridgeDeps struct {
	Store     Store
	Backend   Backend
	Responder Responder
	BotID     string
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewBridge(deps BridgeDeps) *Bridge {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStore(DedupTTL)
	}
	return &Bridge{
		store:     deps.Store,
		backend:   deps.Backend,
		responder: deps.Responder,
		botID:     strings.TrimSpace(deps.BotID),
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// Handle processes one thread message. It never returns an error: dropped
// messages and transport faults are logged, and backend failures turn into a
// fixed apology in the thread.
func (b *Bridge) Handle(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.logger.Debug("dropping empty chat message", "thread_id", msg.ThreadID)
		return
	}
	if b.botID != "" && msg.SenderID == b.botID {
		b.logger.Debug("dropping own message", "thread_id", msg.ThreadID, "message_id", msg.MessageID)
		return
	}
	if !b.store.CheckAndRecord(msg.MessageID, b.now()) {
		b.logger.Warn("dropping duplicate chat message", "thread_id", msg.ThreadID, "message_id", msg.MessageID)
		return
	}

	reply := b.answer(ctx, msg, text)
	if err := b.responder.Reply(ctx, msg.ThreadID, reply); err != nil {
		b.logger.Error("chat reply failed", "thread_id", msg.ThreadID, "message_id", msg.MessageID, "error", err)
	}
}

func (b *Bridge) answer(ctx context.Context, msg Message, question string) string {
	answer, err := b.backend.Ask(ctx, question)
	if err != nil {
		b.logger.Error("query backend failed", "thread_id", msg.ThreadID, "message_id", msg.MessageID, "error", err)
		return apologyText
	}
	if strings.TrimSpace(answer) == "" {
		b.logger.Warn("query backend returned no answer", "thread_id", msg.ThreadID, "message_id", msg.MessageID)
		return fallbackText
	}
	return answer
}
