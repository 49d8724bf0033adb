package achievements

import (
	"context"
	"fmt"
	"testing"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/store"
)

type fakeAwarder struct {
	calls []string
	fail  bool
}

func (f *fakeAwarder) AwardCoins(_ context.Context, amount int64, txType domain.TransactionType, reference, _ string) *domain.AwardResult {
	f.calls = append(f.calls, reference)
	if f.fail {
		return nil
	}
	return &domain.AwardResult{Success: true, Awarded: amount}
}

func newTestEngine(t *testing.T) (*Engine, *fakeAwarder, *events.Bus, store.Store) {
	t.Helper()
	st := store.NewMemory()
	aw := &fakeAwarder{}
	bus := events.NewBus()
	return NewEngine(st, aw, bus, "u1"), aw, bus, st
}

func TestUnlockIdempotent(t *testing.T) {
	e, aw, bus, _ := newTestEngine(t)
	ctx := context.Background()

	var fired int
	bus.Achievements.Subscribe(func(events.AchievementUnlocked) { fired++ })

	if !e.Unlock(ctx, "gamer") {
		t.Fatal("first unlock reported no-op")
	}
	if e.Unlock(ctx, "gamer") {
		t.Fatal("second unlock reported a new unlock")
	}

	if !e.HasUnlocked("gamer") {
		t.Fatal("gamer not in the unlocked set")
	}
	if len(aw.calls) != 1 || aw.calls[0] != "gamer" {
		t.Fatalf("award calls = %v; reward must be paid exactly once", aw.calls)
	}
	if fired != 1 {
		t.Fatalf("unlocked event fired %d times; want 1", fired)
	}
}

func TestUnlockUnknownID(t *testing.T) {
	e, aw, _, _ := newTestEngine(t)
	if e.Unlock(context.Background(), "no_such_achievement") {
		t.Fatal("unknown id unlocked")
	}
	if len(aw.calls) != 0 {
		t.Fatalf("award calls = %v for unknown id", aw.calls)
	}
}

func TestUnlockFailedAwardKeepsUnlock(t *testing.T) {
	e, aw, _, st := newTestEngine(t)
	aw.fail = true
	ctx := context.Background()

	if !e.Unlock(ctx, "gamer") {
		t.Fatal("unlock failed")
	}
	if !e.HasUnlocked("gamer") {
		t.Fatal("failed reward reverted the unlock")
	}
	// the id persisted regardless
	ok, _ := st.HasMember(ctx, store.UserKey(store.KeyAchievements, "u1"), "gamer")
	if !ok {
		t.Fatal("unlock not persisted")
	}
}

func TestFifthUnlockTriggersCollector(t *testing.T) {
	e, aw, bus, _ := newTestEngine(t)
	ctx := context.Background()

	var unlockedIDs []string
	bus.Achievements.Subscribe(func(ev events.AchievementUnlocked) {
		unlockedIDs = append(unlockedIDs, ev.Achievement.ID)
	})

	ids := []string{"gamer", "social", "konami", "night_owl"}
	for _, id := range ids {
		e.Unlock(ctx, id)
	}
	if e.HasUnlocked(MetaFiveAchievements) {
		t.Fatal("meta unlocked before the fifth achievement")
	}

	// the fifth unlock must pull the meta in within the same call
	e.Unlock(ctx, "music_lover")
	if !e.HasUnlocked(MetaFiveAchievements) {
		t.Fatal("meta not unlocked on the fifth achievement")
	}

	// last two events: the fifth id, then the meta, in order
	if n := len(unlockedIDs); n < 2 || unlockedIDs[n-2] != "music_lover" || unlockedIDs[n-1] != MetaFiveAchievements {
		t.Fatalf("event order = %v", unlockedIDs)
	}

	// a sixth unlock must not re-trigger the meta
	e.Unlock(ctx, "secret_finder")
	metaAwards := 0
	for _, ref := range aw.calls {
		if ref == MetaFiveAchievements {
			metaAwards++
		}
	}
	if metaAwards != 1 {
		t.Fatalf("meta rewarded %d times; want 1", metaAwards)
	}
}

func TestAllAchievementsMeta(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, a := range Catalog {
		if a.ID == MetaAllAchievements {
			continue
		}
		e.Unlock(ctx, a.ID)
	}
	if !e.HasUnlocked(MetaAllAchievements) {
		t.Fatal("full catalog did not unlock the final meta")
	}
}

func TestLoadRestoresState(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	achKey := store.UserKey(store.KeyAchievements, "u1")
	st.AddMember(ctx, achKey, "gamer")
	st.AddMember(ctx, achKey, "stale_unknown_id")
	st.AddMember(ctx, store.UserKey(store.KeyVisitedPages, "u1"), "home")

	e := NewEngine(st, &fakeAwarder{}, events.NewBus(), "u1")
	if err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if !e.HasUnlocked("gamer") {
		t.Fatal("persisted unlock not restored")
	}
	if e.HasUnlocked("stale_unknown_id") {
		t.Fatal("unknown persisted id restored")
	}

	// a reload must not re-award the restored unlock
	aw := &fakeAwarder{}
	e2 := NewEngine(st, aw, events.NewBus(), "u1")
	e2.Load(ctx)
	if e2.Unlock(ctx, "gamer") {
		t.Fatal("restored unlock reported as new")
	}
	if len(aw.calls) != 0 {
		t.Fatalf("award calls after reload = %v; want none", aw.calls)
	}
}

// publishingAwarder mirrors the ledger: a successful award publishes the
// new balance on the coins topic from the caller's goroutine.
type publishingAwarder struct {
	bus     *events.Bus
	balance int64
}

func (p *publishingAwarder) AwardCoins(_ context.Context, amount int64, txType domain.TransactionType, _, _ string) *domain.AwardResult {
	p.balance += amount
	p.bus.Coins.Publish(events.CoinsChanged{Balance: p.balance, Type: txType})
	return &domain.AwardResult{Success: true, Balance: p.balance, Awarded: amount}
}

func TestUnlockReentrantFromCoinsSubscriber(t *testing.T) {
	st := store.NewMemory()
	bus := events.NewBus()
	aw := &publishingAwarder{bus: bus, balance: 460}
	e := NewEngine(st, aw, bus, "u1")

	// the daemon wires this: crossing 500 coins unlocks "rich", called
	// synchronously from the coins handler on the awarding goroutine
	bus.Coins.Subscribe(func(ev events.CoinsChanged) {
		if ev.Balance >= 500 {
			e.Unlock(context.Background(), "rich")
		}
	})

	done := make(chan struct{})
	go func() {
		e.Unlock(context.Background(), "secret_finder") // reward 100 -> 560
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unlock deadlocked on its own coins subscriber")
	}

	if !e.HasUnlocked("secret_finder") || !e.HasUnlocked("rich") {
		t.Fatalf("unlocked = %v; want secret_finder and rich", e.Unlocked())
	}
}

func TestUnlockReentrantFromAchievementSubscriber(t *testing.T) {
	e, _, bus, _ := newTestEngine(t)

	// a subscriber reacting to one unlock by triggering another must not
	// wedge on the engine's own locks
	bus.Achievements.Subscribe(func(ev events.AchievementUnlocked) {
		if ev.Achievement.ID == "konami" {
			e.Unlock(context.Background(), "secret_finder")
		}
	})

	done := make(chan struct{})
	go func() {
		e.Unlock(context.Background(), "konami")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unlock deadlocked on its own achievement subscriber")
	}

	if !e.HasUnlocked("secret_finder") {
		t.Fatal("chained unlock did not land")
	}
}

func TestTrackPageVisit(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	isNew, total := e.TrackPageVisit(ctx, "home")
	if !isNew || total != 1 {
		t.Fatalf("first visit = %v,%d; want true,1", isNew, total)
	}
	if !e.HasUnlocked("first_visit") {
		t.Fatal("first visit did not unlock first_visit")
	}

	if isNew, _ := e.TrackPageVisit(ctx, "home"); isNew {
		t.Fatal("repeat visit reported new")
	}

	for i := 0; i < 9; i++ {
		e.TrackPageVisit(ctx, fmt.Sprintf("section-%d", i))
	}
	if !e.HasUnlocked("explorer") {
		t.Fatal("ten distinct sections did not unlock explorer")
	}
}

func TestVisitAllKnownPages(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, p := range KnownPages {
		e.TrackPageVisit(ctx, p)
	}
	if !e.HasUnlocked("completionist") {
		t.Fatal("full coverage did not unlock completionist")
	}
}
