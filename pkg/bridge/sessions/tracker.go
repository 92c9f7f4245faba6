// Package sessions tracks active call sessions so shutdown can cancel and
// drain them.
package sessions

import (
	"context"
	"sync"
)

type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		calls: make(map[string]*trackedCall),
	}
}

// Register adds a running call. If the same ID is already registered the old
// entry is cancelled and replaced. The returned func unregisters exactly once.
func (t *Tracker) Register(callID string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{cancel: cancel}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	old := t.calls[callID]
	t.calls[callID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.cancel != nil {
			old.cancel()
		}
		t.unregister(callID, old)
	}

	return func() { t.unregister(callID, entry) }
}

func (t *Tracker) unregister(callID string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls != nil && t.calls[callID] == entry {
			delete(t.calls, callID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// CancelAll asks every active call to close. It does not wait; pair with Wait.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.cancel == nil {
			continue
		}
		cancels = append(cancels, entry.cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or ctx expires.
// It reports whether the drain completed.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
