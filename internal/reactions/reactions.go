package reactions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spacedan/internal/domain"
	"spacedan/internal/logger"
	"spacedan/internal/optimistic"
	"spacedan/internal/realtime"
)

// Toggler is the slice of the rpc client the reconciler mutates through.
type Toggler interface {
	ToggleReaction(ctx context.Context, postID string, t domain.ReactionType) error
	PostReactions(ctx context.Context, postID string) (*domain.ReactionMetadata, error)
}

// Reconciler applies reaction toggles optimistically: the speculative
// metadata is rendered immediately, the single remote mutation runs once,
// and on failure the exact pre-toggle snapshot is restored. A per-post
// in-flight guard drops (not queues) a second toggle racing the first.
type Reconciler struct {
	rpc   Toggler
	guard *optimistic.Guard

	mu    sync.RWMutex
	posts map[string]domain.ReactionMetadata

	// OnUpdate, when set, is invoked with every metadata change applied
	// (speculative, rollback or refetch). Runs on the mutating goroutine.
	OnUpdate func(postID string, m domain.ReactionMetadata)
}

func NewReconciler(rpc Toggler) *Reconciler {
	return &Reconciler{
		rpc:   rpc,
		guard: optimistic.NewGuard(),
		posts: make(map[string]domain.ReactionMetadata),
	}
}

// Seed installs the fetched metadata for a post.
func (r *Reconciler) Seed(postID string, m domain.ReactionMetadata) {
	r.apply(postID, m.Clone())
}

// Metadata returns the current (possibly speculative) metadata of a post.
func (r *Reconciler) Metadata(postID string) domain.ReactionMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.posts[postID].Clone()
}

func (r *Reconciler) apply(postID string, m domain.ReactionMetadata) {
	r.mu.Lock()
	r.posts[postID] = m
	r.mu.Unlock()

	if r.OnUpdate != nil {
		r.OnUpdate(postID, m)
	}
}

// Toggle toggles the user's reaction of the given type on a post.
func (r *Reconciler) Toggle(ctx context.Context, postID string, t domain.ReactionType) error {
	if !t.Valid() {
		return fmt.Errorf("reactions: unknown type %q", t)
	}
	if !r.guard.TryAcquire(postID) {
		return optimistic.ErrInFlight
	}
	defer r.guard.Release(postID)

	snapshot := r.Metadata(postID)

	return optimistic.Run(ctx, optimistic.Update[domain.ReactionMetadata]{
		Feature:     "reactions",
		Snapshot:    snapshot,
		Speculative: Next(snapshot, t),
		Apply: func(m domain.ReactionMetadata) {
			r.apply(postID, m)
		},
		Remote: func(ctx context.Context) error {
			return r.rpc.ToggleReaction(ctx, postID, t)
		},
	})
}

// Refetch replaces a post's metadata with the server's view. Row-change
// notifications always land here rather than patching incrementally, so
// arbitrary server-side filters stay correct.
func (r *Reconciler) Refetch(ctx context.Context, postID string) error {
	m, err := r.rpc.PostReactions(ctx, postID)
	if err != nil {
		return err
	}
	r.apply(postID, *m)
	return nil
}

// Watch opens the post's realtime channel; any reaction row change
// triggers a full refetch.
func (r *Reconciler) Watch(rt *realtime.Manager, postID string) (*realtime.Subscription, error) {
	return rt.Subscribe("post", postID, realtime.Handlers{
		OnChange: func(realtime.RowChange) {
			if err := r.Refetch(context.Background(), postID); err != nil {
				logger.Warn("reactions: refetch after change failed", "post", postID, "err", err)
			}
		},
	})
}

// Next computes the speculative metadata for toggling t, mirroring the
// server's delete-or-replace semantics:
//   - same type as the current user reaction: removal;
//   - different type with a prior reaction: replace, total unchanged;
//   - no prior reaction: add.
//
// Only the tracked (top) types carry counts; the result keeps the two
// highest, ordered by count descending.
func Next(cur domain.ReactionMetadata, t domain.ReactionType) domain.ReactionMetadata {
	next := cur.Clone()

	removing := cur.UserReaction != nil && *cur.UserReaction == t
	if removing {
		if next.TotalCount > 0 {
			next.TotalCount--
		}
		next.UserReaction = nil
		next.TopReactions = bump(next.TopReactions, t, -1)
		return next
	}

	if cur.UserReaction != nil {
		// Replace: the old row is deleted server-side, so the total
		// stays put and the prior type loses one.
		next.TopReactions = bump(next.TopReactions, *cur.UserReaction, -1)
	} else {
		next.TotalCount++
	}

	rt := t
	next.UserReaction = &rt
	next.TopReactions = bump(next.TopReactions, t, +1)

	sort.SliceStable(next.TopReactions, func(i, j int) bool {
		return next.TopReactions[i].Count > next.TopReactions[j].Count
	})
	if len(next.TopReactions) > 2 {
		next.TopReactions = next.TopReactions[:2]
	}
	return next
}

// bump adjusts the count of one type in the tracked list, inserting on
// increment and dropping entries that reach zero.
func bump(list []domain.ReactionCount, t domain.ReactionType, delta int) []domain.ReactionCount {
	out := make([]domain.ReactionCount, 0, len(list)+1)
	found := false
	for _, rc := range list {
		if rc.Type == t {
			found = true
			rc.Count += delta
			if rc.Count <= 0 {
				continue
			}
		}
		out = append(out, rc)
	}
	if !found && delta > 0 {
		out = append(out, domain.ReactionCount{Type: t, Count: delta})
	}
	return out
}
