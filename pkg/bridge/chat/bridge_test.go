package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	asked   []string
}

func (f *fakeBackend) Ask(_ context.Context, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, question)
	if f.err != nil {
		return "", f.err
	}
	return f.answers[question], nil
}

func (f *fakeBackend) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asked)
}

type fakeResponder struct {
	mu      sync.Mutex
	err     error
	replies []string
	threads []string
}

func (f *fakeResponder) Reply(_ context.Context, threadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, threadID)
	f.replies = append(f.replies, text)
	return f.err
}

func (f *fakeResponder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.replies))
	copy(out, f.replies)
	return out
}

func newTestBridge(backend Backend, responder Responder, now func() time.Time) *Bridge {
	return NewBridge(BridgeDeps{
		Store:     NewMemoryStore(DedupTTL),
		Backend:   backend,
		Responder: responder,
		BotID:     "bot-1",
		Now:       now,
	})
}

func TestBridgeRelaysAnswerExactlyOnce(t *testing.T) {
	backend := &fakeBackend{answers: map[string]string{"what is the meaning of life?": "42"}}
	responder := &fakeResponder{}
	b := newTestBridge(backend, responder, time.Now)

	msg := Message{ThreadID: "t1", MessageID: "m1", SenderID: "user-7", Text: "what is the meaning of life?"}
	b.Handle(context.Background(), msg)
	b.Handle(context.Background(), msg) // webhook redelivery
	b.Handle(context.Background(), msg)

	if got := backend.askCount(); got != 1 {
		t.Fatalf("backend asked %d times, want 1", got)
	}
	replies := responder.snapshot()
	if len(replies) != 1 || replies[0] != "42" {
		t.Fatalf("replies=%v, want exactly [42]", replies)
	}
	if responder.threads[0] != "t1" {
		t.Fatalf("thread=%q, want t1", responder.threads[0])
	}
}

func TestBridgeApologyOnBackendFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend timeout")}
	responder := &fakeResponder{}
	b := newTestBridge(backend, responder, time.Now)

	b.Handle(context.Background(), Message{ThreadID: "t1", MessageID: "m1", SenderID: "user-7", Text: "hello"})

	replies := responder.snapshot()
	if len(replies) != 1 || replies[0] != apologyText {
		t.Fatalf("replies=%v, want apology", replies)
	}
}

func TestBridgeFallbackOnEmptyAnswer(t *testing.T) {
	backend := &fakeBackend{answers: map[string]string{}}
	responder := &fakeResponder{}
	b := newTestBridge(backend, responder, time.Now)

	b.Handle(context.Background(), Message{ThreadID: "t1", MessageID: "m1", SenderID: "user-7", Text: "hello"})

	replies := responder.snapshot()
	if len(replies) != 1 || replies[0] != fallbackText {
		t.Fatalf("replies=%v, want fallback", replies)
	}
}

func TestBridgeDropsEmptyAndOwnMessages(t *testing.T) {
	backend := &fakeBackend{}
	responder := &fakeResponder{}
	b := newTestBridge(backend, responder, time.Now)

	b.Handle(context.Background(), Message{ThreadID: "t1", MessageID: "m1", SenderID: "user-7", Text: "   "})
	b.Handle(context.Background(), Message{ThreadID: "t1", MessageID: "m2", SenderID: "bot-1", Text: "echo of my own reply"})

	if got := backend.askCount(); got != 0 {
		t.Fatalf("backend asked %d times, want 0", got)
	}
	if replies := responder.snapshot(); len(replies) != 0 {
		t.Fatalf("replies=%v, want none", replies)
	}
}

func TestBridgeResponderFailureDoesNotEscape(t *testing.T) {
	backend := &fakeBackend{answers: map[string]string{"hello": "hi"}}
	responder := &fakeResponder{err: errors.New("thread gone")}
	b := newTestBridge(backend, responder, time.Now)

	// Handle has no error return; this must simply not panic.
	b.Handle(context.Background(), Message{ThreadID: "t1", MessageID: "m1", SenderID: "user-7", Text: "hello"})
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(5 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !store.CheckAndRecord("m1", base) {
		t.Fatal("first sighting should be new")
	}
	if store.CheckAndRecord("m1", base.Add(4*time.Minute)) {
		t.Fatal("redelivery inside TTL should be a duplicate")
	}
	if !store.CheckAndRecord("m1", base.Add(5*time.Minute+time.Second)) {
		t.Fatal("sighting after TTL should be new again")
	}
}

func TestMemoryStoreLazyEviction(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.CheckAndRecord("m1", base)
	store.CheckAndRecord("m2", base)
	if got := store.Len(); got != 2 {
		t.Fatalf("len=%d, want 2", got)
	}

	// A later call sweeps both expired entries.
	store.CheckAndRecord("m3", base.Add(2*time.Minute))
	if got := store.Len(); got != 1 {
		t.Fatalf("len=%d, want 1 after sweep", got)
	}
}
