package store

import "context"

// Store is the local persisted key-value state of the client: unlocked
// achievements, legacy coin balance, idempotency markers, liked posts and
// shop ownership. It is the localStorage analog of the web client and keeps
// its semantics: single writer per process, last write wins across
// concurrent processes, no merge.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Set-valued keys (achievement ids, visited pages, liked posts, items).
	AddMember(ctx context.Context, key, member string) error
	RemoveMember(ctx context.Context, key, member string) error
	HasMember(ctx context.Context, key, member string) (bool, error)
	Members(ctx context.Context, key string) ([]string, error)
}

// Namespaced key layout; kept close to the legacy web client so a redis
// inspection reads familiarly.
const (
	keyPrefix = "space-dan:"

	KeyAchievements = keyPrefix + "achievements" // set of unlocked ids
	KeyLegacyCoins  = keyPrefix + "coins"        // pre-auth accumulated balance
	KeyVisitedPages = keyPrefix + "visited-pages"
	KeyDailyClaimed = keyPrefix + "daily-bonus"     // last claim, RFC3339
	KeyMigrated     = keyPrefix + "economy-migrated" // one-time migration marker
	KeyLikedPosts   = keyPrefix + "likes"
	KeyLikeCounts   = keyPrefix + "like-counts" // per-post cached counts (suffix :<post>)
	KeyPurchased    = keyPrefix + "shop-purchased"
	KeyEquipped     = keyPrefix + "shop-equipped"
)

// UserKey scopes a key to one account so two accounts on the same machine
// do not share markers.
func UserKey(base, userID string) string {
	return base + ":" + userID
}
