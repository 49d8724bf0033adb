package likes

import (
	"context"
	"strconv"
	"sync"

	"spacedan/internal/logger"
	"spacedan/internal/optimistic"
	"spacedan/internal/store"
)

// Counter is the remote like-counter boundary. The counter is external and
// append-only; it knows nothing about who liked, only how many.
type Counter interface {
	LikeCount(ctx context.Context, postID string) (int, error)
	LikeUp(ctx context.Context, postID string) (int, error)
	LikeDown(ctx context.Context, postID string) (int, error)
}

// State is the like view of one post for the local user.
type State struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}

// Likes is the optimistic like toggle for counter-backed posts. The liked
// set and count cache persist locally; the remote counter reconciles by
// taking the max of local and remote, since the counter can only lag
// behind local increments, never lead them.
type Likes struct {
	rpc   Counter
	store store.Store
	guard *optimistic.Guard

	mu    sync.RWMutex
	state map[string]State
}

func New(rpc Counter, st store.Store) *Likes {
	return &Likes{
		rpc:   rpc,
		store: st,
		guard: optimistic.NewGuard(),
		state: make(map[string]State),
	}
}

// Load restores the persisted liked set and cached counts for the given
// posts.
func (l *Likes) Load(ctx context.Context, postIDs []string) error {
	likedIDs, err := l.store.Members(ctx, store.KeyLikedPosts)
	if err != nil {
		return err
	}
	liked := make(map[string]struct{}, len(likedIDs))
	for _, id := range likedIDs {
		liked[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range postIDs {
		st := State{}
		if _, ok := liked[id]; ok {
			st.Liked = true
		}
		if raw, ok, err := l.store.Get(ctx, store.KeyLikeCounts+":"+id); err == nil && ok {
			if n, err := strconv.Atoi(raw); err == nil {
				st.Count = n
			}
		}
		l.state[id] = st
	}
	return nil
}

// State returns the current like view of a post.
func (l *Likes) State(postID string) State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state[postID]
}

func (l *Likes) apply(ctx context.Context, postID string, st State) {
	l.mu.Lock()
	l.state[postID] = st
	l.mu.Unlock()

	// Best-effort persistence; the in-memory state is what renders.
	var err error
	if st.Liked {
		err = l.store.AddMember(ctx, store.KeyLikedPosts, postID)
	} else {
		err = l.store.RemoveMember(ctx, store.KeyLikedPosts, postID)
	}
	if err == nil {
		err = l.store.Set(ctx, store.KeyLikeCounts+":"+postID, strconv.Itoa(st.Count))
	}
	if err != nil {
		logger.Warn("likes: persist failed", "post", postID, "err", err)
	}
}

// Sync refreshes a post's count from the remote counter, keeping the max
// of local and remote.
func (l *Likes) Sync(ctx context.Context, postID string) error {
	remote, err := l.rpc.LikeCount(ctx, postID)
	if err != nil {
		return err
	}

	cur := l.State(postID)
	if remote > cur.Count {
		cur.Count = remote
		l.apply(ctx, postID, cur)
	}
	return nil
}

// Toggle flips the local user's like on a post, optimistically. On remote
// failure the pre-toggle state is restored exactly.
func (l *Likes) Toggle(ctx context.Context, postID string) error {
	if !l.guard.TryAcquire(postID) {
		return optimistic.ErrInFlight
	}
	defer l.guard.Release(postID)

	snapshot := l.State(postID)

	speculative := snapshot
	if snapshot.Liked {
		speculative.Liked = false
		if speculative.Count > 0 {
			speculative.Count--
		}
	} else {
		speculative.Liked = true
		speculative.Count++
	}

	return optimistic.Run(ctx, optimistic.Update[State]{
		Feature:     "likes",
		Snapshot:    snapshot,
		Speculative: speculative,
		Apply: func(st State) {
			l.apply(ctx, postID, st)
		},
		Remote: func(ctx context.Context) error {
			var (
				remote int
				err    error
			)
			if speculative.Liked {
				remote, err = l.rpc.LikeUp(ctx, postID)
			} else {
				remote, err = l.rpc.LikeDown(ctx, postID)
			}
			if err != nil {
				return err
			}
			// Reconcile with the authoritative counter when it is
			// ahead of the speculative value.
			if remote > speculative.Count {
				st := speculative
				st.Count = remote
				l.apply(ctx, postID, st)
			}
			return nil
		},
	})
}
