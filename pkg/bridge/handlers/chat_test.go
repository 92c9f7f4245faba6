package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/bridge/chat"
)

type recordingBackend struct {
	mu    sync.Mutex
	asked []string
}

func (b *recordingBackend) Ask(_ context.Context, question string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asked = append(b.asked, question)
	return "42", nil
}

type recordingResponder struct {
	mu      sync.Mutex
	replies []string
}

func (r *recordingResponder) Reply(_ context.Context, threadID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, threadID+": "+text)
	return nil
}

func newChatHandler(backend chat.Backend, responder chat.Responder) ChatEventHandler {
	return ChatEventHandler{
		Bridge: chat.NewBridge(chat.BridgeDeps{
			Store:     chat.NewMemoryStore(5 * time.Minute),
			Backend:   backend,
			Responder: responder,
			BotID:     "bot-1",
		}),
	}
}

func TestChatEventHandlerAcceptsAndRelays(t *testing.T) {
	backend := &recordingBackend{}
	responder := &recordingResponder{}
	h := newChatHandler(backend, responder)

	body := `{"threadId":"t1","messageId":"m1","senderId":"user-7","text":"what is the meaning of life?"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	responder.mu.Lock()
	defer responder.mu.Unlock()
	if len(responder.replies) != 1 || responder.replies[0] != "t1: 42" {
		t.Fatalf("replies = %v, want [t1: 42]", responder.replies)
	}
}

func TestChatEventHandlerDedupsRedelivery(t *testing.T) {
	backend := &recordingBackend{}
	responder := &recordingResponder{}
	h := newChatHandler(backend, responder)

	body := `{"threadId":"t1","messageId":"m1","senderId":"user-7","text":"hello"}`
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader(body)))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("delivery %d: status = %d, want 202", i, rec.Code)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.asked) != 1 {
		t.Fatalf("backend asked %d times, want 1", len(backend.asked))
	}
}

func TestChatEventHandlerGeneratesMissingMessageID(t *testing.T) {
	backend := &recordingBackend{}
	responder := &recordingResponder{}
	h := newChatHandler(backend, responder)

	// Two deliveries without IDs must not collide in the dedup store.
	for i := 0; i < 2; i++ {
		body := `{"threadId":"t1","senderId":"user-7","text":"hello"}`
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader(body)))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.asked) != 2 {
		t.Fatalf("backend asked %d times, want 2", len(backend.asked))
	}
}

func TestChatEventHandlerRejectsBadRequests(t *testing.T) {
	h := newChatHandler(&recordingBackend{}, &recordingResponder{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader(`{"text":"hi"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing threadId status = %d, want 400", rec.Code)
	}
}

func TestChatEventHandlerWithoutBridge(t *testing.T) {
	h := ChatEventHandler{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/events", strings.NewReader(`{"threadId":"t1","text":"hi"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
