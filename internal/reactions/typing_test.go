package reactions

import (
	"testing"
	"time"

	"spacedan/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTypingStartAndExpiry(t *testing.T) {
	tr := NewTypingTracker(30 * time.Millisecond)
	defer tr.Close()

	tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})

	active := tr.Active()
	if len(active) != 1 || active[0].DisplayName != "Dan" {
		t.Fatalf("active = %v; want Dan typing", active)
	}

	// no stop message arrives; the entry must expire on its own
	waitFor(t, func() bool { return len(tr.Active()) == 0 })
}

func TestTypingExplicitStop(t *testing.T) {
	tr := NewTypingTracker(time.Minute)
	defer tr.Close()

	tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})
	tr.Handle(domain.TypingEvent{SenderID: "u1", IsTyping: false})

	if n := len(tr.Active()); n != 0 {
		t.Fatalf("active = %d after stop; want 0", n)
	}
}

func TestTypingRepeatResetsExpiry(t *testing.T) {
	tr := NewTypingTracker(60 * time.Millisecond)
	defer tr.Close()

	tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})
	}
	// 120ms elapsed, more than one TTL, but repeats kept it alive
	if n := len(tr.Active()); n != 1 {
		t.Fatalf("active = %d; repeats should keep the entry alive", n)
	}

	waitFor(t, func() bool { return len(tr.Active()) == 0 })
}

func TestTypingActiveSortedByID(t *testing.T) {
	tr := NewTypingTracker(time.Minute)
	defer tr.Close()

	tr.Handle(domain.TypingEvent{SenderID: "zeta", DisplayName: "Z", IsTyping: true})
	tr.Handle(domain.TypingEvent{SenderID: "alpha", DisplayName: "A", IsTyping: true})

	active := tr.Active()
	if len(active) != 2 || active[0].ID != "alpha" || active[1].ID != "zeta" {
		t.Fatalf("active = %v; want alpha before zeta", active)
	}
}

func TestTypingCloseCancelsAll(t *testing.T) {
	tr := NewTypingTracker(time.Minute)
	tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})
	tr.Close()

	if n := len(tr.Active()); n != 0 {
		t.Fatalf("active = %d after close; want 0", n)
	}
	// events after close are dropped
	tr.Handle(domain.TypingEvent{SenderID: "u2", DisplayName: "X", IsTyping: true})
	if n := len(tr.Active()); n != 0 {
		t.Fatalf("closed tracker accepted an event")
	}
}

func TestTypingOnChange(t *testing.T) {
	tr := NewTypingTracker(time.Minute)
	defer tr.Close()

	var last []Typist
	tr.OnChange = func(ts []Typist) { last = ts }

	tr.Handle(domain.TypingEvent{SenderID: "u1", DisplayName: "Dan", IsTyping: true})
	if len(last) != 1 {
		t.Fatalf("OnChange saw %d typists; want 1", len(last))
	}
	tr.Handle(domain.TypingEvent{SenderID: "u1", IsTyping: false})
	if len(last) != 0 {
		t.Fatalf("OnChange saw %d typists after stop; want 0", len(last))
	}
}
