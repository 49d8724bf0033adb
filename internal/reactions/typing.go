package reactions

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/logger"
	"spacedan/internal/realtime"
)

// TypingEventName is the broadcast event carrying typing presence.
const TypingEventName = "typing"

// DefaultTypingTTL is how long a typing entry lives without a repeat
// broadcast. Missed stop messages self-heal through this expiry; there is
// no other cleanup.
const DefaultTypingTTL = 3 * time.Second

// Typist is one currently-typing peer.
type Typist struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type typingEntry struct {
	name  string
	timer *time.Timer
}

// TypingTracker maintains the ephemeral who-is-typing map. Every entry
// carries its own cancellable expiry task: a repeat broadcast resets it,
// an explicit stop cancels it, and Close cancels them all on teardown.
// Nothing here is ever persisted.
type TypingTracker struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*typingEntry
	closed  bool

	// OnChange, when set, receives the active list after each mutation.
	OnChange func([]Typist)
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		entries: make(map[string]*typingEntry),
	}
}

// Handle processes one typing broadcast.
func (t *TypingTracker) Handle(ev domain.TypingEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if !ev.IsTyping {
		if e, ok := t.entries[ev.SenderID]; ok {
			e.timer.Stop()
			delete(t.entries, ev.SenderID)
		}
		t.mu.Unlock()
		t.notify()
		return
	}

	if e, ok := t.entries[ev.SenderID]; ok {
		e.name = ev.DisplayName
		e.timer.Reset(t.ttl)
		t.mu.Unlock()
		t.notify()
		return
	}

	sender := ev.SenderID
	t.entries[sender] = &typingEntry{
		name:  ev.DisplayName,
		timer: time.AfterFunc(t.ttl, func() { t.expire(sender) }),
	}
	t.mu.Unlock()
	t.notify()
}

func (t *TypingTracker) expire(senderID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.entries, senderID)
	t.mu.Unlock()
	t.notify()
}

// Active returns the current typists, ordered by id for stable rendering.
func (t *TypingTracker) Active() []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Typist, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, Typist{ID: id, DisplayName: e.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close cancels every expiry task and drops all entries.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}

func (t *TypingTracker) notify() {
	if t.OnChange != nil {
		t.OnChange(t.Active())
	}
}

// TypingHandlers adapts a tracker into realtime channel handlers so it can
// be attached to a universe subscription.
func TypingHandlers(t *TypingTracker) realtime.Handlers {
	return realtime.Handlers{
		OnBroadcast: func(b realtime.Broadcast) {
			if b.Event != TypingEventName {
				return
			}
			var ev domain.TypingEvent
			if err := json.Unmarshal(b.Payload, &ev); err != nil {
				logger.Warn("typing: malformed broadcast", "err", err)
				return
			}
			t.Handle(ev)
		},
	}
}

// SendTyping broadcasts the local user's typing state on the channel.
func SendTyping(sub *realtime.Subscription, senderID, displayName string, isTyping bool) error {
	return sub.Broadcast(TypingEventName, domain.TypingEvent{
		SenderID:    senderID,
		DisplayName: displayName,
		IsTyping:    isTyping,
	})
}
