package achievements

import (
	"context"
	"sync"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/logger"
	"spacedan/internal/metrics"
	"spacedan/internal/store"
)

// CoinAwarder is the slice of the ledger client the engine needs for
// reward side effects. A nil result means the award had no visible effect.
type CoinAwarder interface {
	AwardCoins(ctx context.Context, amount int64, txType domain.TransactionType, reference, description string) *domain.AwardResult
}

// Engine is the idempotent achievement unlock engine. The unlocked set is
// monotonic: ids enter at most once and never leave, and entering triggers
// the coin reward exactly once.
type Engine struct {
	store   store.Store
	awarder CoinAwarder
	topic   *events.Topic[events.AchievementUnlocked]
	userID  string

	// opMu serializes the commit phase of an unlock (set entry plus
	// chain re-evaluation); mu guards only the set itself. Side effects
	// run outside both locks.
	opMu     sync.Mutex
	mu       sync.RWMutex
	unlocked map[string]struct{}
	visited  map[string]struct{}
}

func NewEngine(st store.Store, awarder CoinAwarder, bus *events.Bus, userID string) *Engine {
	return &Engine{
		store:    st,
		awarder:  awarder,
		topic:    bus.Achievements,
		userID:   userID,
		unlocked: make(map[string]struct{}),
		visited:  make(map[string]struct{}),
	}
}

// Load restores the persisted unlocked set and visited pages.
func (e *Engine) Load(ctx context.Context) error {
	ids, err := e.store.Members(ctx, store.UserKey(store.KeyAchievements, e.userID))
	if err != nil {
		return err
	}
	pages, err := e.store.Members(ctx, store.UserKey(store.KeyVisitedPages, e.userID))
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, id := range ids {
		if _, known := Lookup(id); known {
			e.unlocked[id] = struct{}{}
		}
	}
	for _, p := range pages {
		e.visited[p] = struct{}{}
	}
	e.mu.Unlock()
	return nil
}

// HasUnlocked reports whether id is in the unlocked set.
func (e *Engine) HasUnlocked(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.unlocked[id]
	return ok
}

// Unlocked returns the current unlocked ids.
func (e *Engine) Unlocked() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.unlocked))
	for id := range e.unlocked {
		ids = append(ids, id)
	}
	return ids
}

// committed is one unlock accepted into the set, awaiting its side
// effects (persistence, reward, event).
type committed struct {
	ach   domain.Achievement
	total int
}

// Unlock adds id to the unlocked set and reports whether this call caused
// a new unlock. Duplicate and unknown ids are no-ops. The set mutation and
// the synchronous meta-chain evaluation commit under the operation lock;
// rewards and events settle after it releases, so a coin or achievement
// subscriber may call back into Unlock without deadlocking on opMu.
func (e *Engine) Unlock(ctx context.Context, id string) bool {
	e.opMu.Lock()
	var queue []committed
	caused := e.commit(id, &queue)
	e.opMu.Unlock()

	for _, c := range queue {
		e.settle(ctx, c)
	}
	return caused
}

// commit enters id into the set and re-evaluates the meta-conditions
// against the just-updated set, all before the operation lock releases,
// so the set is never observable with a chain condition met but the meta
// missing. Recursion terminates because an id enters at most once.
func (e *Engine) commit(id string, queue *[]committed) bool {
	ach, known := Lookup(id)
	if !known {
		return false
	}

	e.mu.Lock()
	if _, done := e.unlocked[id]; done {
		e.mu.Unlock()
		return false
	}
	e.unlocked[id] = struct{}{}
	total := len(e.unlocked)
	e.mu.Unlock()

	*queue = append(*queue, committed{ach: ach, total: total})

	if total >= 5 {
		e.commit(MetaFiveAchievements, queue)
	}
	if total >= len(Catalog)-1 {
		e.commit(MetaAllAchievements, queue)
	}
	return true
}

// settle runs one committed unlock's side effects. Unlock and reward are
// not transactional: a failed persist or award (nil result) does not
// revert the in-memory unlock.
func (e *Engine) settle(ctx context.Context, c committed) {
	if err := e.store.AddMember(ctx, store.UserKey(store.KeyAchievements, e.userID), c.ach.ID); err != nil {
		logger.Error("achievements: persist failed", "id", c.ach.ID, "err", err)
	}

	metrics.Unlocks.Inc()
	logger.Info("achievement unlocked", "id", c.ach.ID, "total", c.total)

	if c.ach.CoinReward > 0 {
		e.awarder.AwardCoins(ctx, c.ach.CoinReward, domain.TxAchievement, c.ach.ID, c.ach.Title)
	}

	e.topic.Publish(events.AchievementUnlocked{Achievement: c.ach, Total: c.total})
}

// TrackPageVisit records a visited section and returns whether it was new
// plus the distinct total. First, tenth and full coverage feed the
// first_visit, explorer and completionist achievements.
func (e *Engine) TrackPageVisit(ctx context.Context, page string) (bool, int) {
	e.mu.Lock()
	_, seen := e.visited[page]
	if !seen {
		e.visited[page] = struct{}{}
	}
	total := len(e.visited)
	e.mu.Unlock()

	if seen {
		return false, total
	}

	if err := e.store.AddMember(ctx, store.UserKey(store.KeyVisitedPages, e.userID), page); err != nil {
		logger.Error("achievements: persist visited page failed", "page", page, "err", err)
	}

	e.Unlock(ctx, "first_visit")
	if total >= 10 {
		e.Unlock(ctx, "explorer")
	}
	if e.visitedAllKnown() {
		e.Unlock(ctx, "completionist")
	}
	return true, total
}

func (e *Engine) visitedAllKnown() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range KnownPages {
		if _, ok := e.visited[p]; !ok {
			return false
		}
	}
	return true
}
