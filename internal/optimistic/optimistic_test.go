package optimistic

import (
	"context"
	"errors"
	"testing"
)

type counterState struct {
	Liked bool
	Count int
}

func TestRunSuccessKeepsSpeculative(t *testing.T) {
	cur := counterState{Liked: false, Count: 3}

	err := Run(context.Background(), Update[counterState]{
		Feature:     "test",
		Snapshot:    cur,
		Speculative: counterState{Liked: true, Count: 4},
		Apply:       func(s counterState) { cur = s },
		Remote:      func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !cur.Liked || cur.Count != 4 {
		t.Fatalf("state = %+v; want Liked=true Count=4", cur)
	}
}

func TestRunFailureRestoresExactSnapshot(t *testing.T) {
	cur := counterState{Liked: false, Count: 3}
	remoteErr := errors.New("boom")

	var calls int
	err := Run(context.Background(), Update[counterState]{
		Feature:     "test",
		Snapshot:    cur,
		Speculative: counterState{Liked: true, Count: 4},
		Apply:       func(s counterState) { cur = s },
		Remote: func(context.Context) error {
			calls++
			return remoteErr
		},
	})
	if !errors.Is(err, remoteErr) {
		t.Fatalf("err = %v; want remote error", err)
	}
	if calls != 1 {
		t.Fatalf("remote called %d times; mutations must never retry", calls)
	}
	if cur.Liked || cur.Count != 3 {
		t.Fatalf("state = %+v; want the literal pre-toggle snapshot", cur)
	}
}

func TestGuard(t *testing.T) {
	g := NewGuard()

	if !g.TryAcquire("post-1") {
		t.Fatal("first acquire refused")
	}
	if g.TryAcquire("post-1") {
		t.Fatal("second acquire on busy target succeeded")
	}
	// other targets are independent
	if !g.TryAcquire("post-2") {
		t.Fatal("unrelated target blocked")
	}

	g.Release("post-1")
	if !g.TryAcquire("post-1") {
		t.Fatal("acquire after release refused")
	}
}
