package optimistic

import (
	"context"
	"errors"
	"sync"

	"spacedan/internal/metrics"
)

// ErrInFlight means a mutation is already running for the target. The new
// attempt is dropped, not queued.
var ErrInFlight = errors.New("optimistic: mutation already in flight for target")

// Update is one optimistic mutation: apply the speculative state
// immediately, run the remote call once, and on failure restore the exact
// snapshot taken before applying. The snapshot is restored literally, never
// recomputed, so unrelated state changed concurrently stays intact.
type Update[S any] struct {
	Feature     string // metrics label
	Snapshot    S
	Speculative S
	Apply       func(S)
	Remote      func(context.Context) error
}

// Run executes the update. Mutating remote calls are never retried; the
// caller decides whether a returned error warrants a resync.
func Run[S any](ctx context.Context, u Update[S]) error {
	u.Apply(u.Speculative)

	if err := u.Remote(ctx); err != nil {
		u.Apply(u.Snapshot)
		metrics.Rollbacks.WithLabelValues(u.Feature).Inc()
		return err
	}
	return nil
}

// Guard serializes mutations per target. It is the only client-side
// serialization point besides the idempotency markers.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// TryAcquire claims the target. It reports false when a mutation for the
// target is already running.
func (g *Guard) TryAcquire(target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[target]; busy {
		return false
	}
	g.inflight[target] = struct{}{}
	return true
}

// Release frees the target for the next mutation.
func (g *Guard) Release(target string) {
	g.mu.Lock()
	delete(g.inflight, target)
	g.mu.Unlock()
}
