package achievements

import "spacedan/internal/domain"

// Meta-achievements re-evaluated after every unlock. They go through the
// same Unlock path as everything else, so idempotency caps the recursion.
const (
	MetaFiveAchievements = "five_achievements"
	MetaAllAchievements  = "all_achievements"
)

// Catalog is the static achievement set, defined at process start and
// never mutated at runtime.
var Catalog = []domain.Achievement{
	{ID: "first_visit", Icon: "🌟", Title: "Welcome", Description: "Visit the site for the first time", CoinReward: 20},
	{ID: "explorer", Icon: "🗺️", Title: "Explorer", Description: "Visit 10 different sections", CoinReward: 50},
	{ID: "completionist", Icon: "🏆", Title: "Completionist", Description: "Visit every section", CoinReward: 200},
	{ID: "gamer", Icon: "🎮", Title: "Gamer", Description: "Play 5 different games", CoinReward: 40},
	{ID: "highscore", Icon: "💥", Title: "Record Breaker", Description: "Set a new high score in any game", CoinReward: 50},
	{ID: "konami", Icon: "⬆️", Title: "Konami Master", Description: "Trigger the secret Konami code", CoinReward: 100},
	{ID: "social", Icon: "📝", Title: "Sociable", Description: "Sign the guestbook", CoinReward: 30},
	{ID: "night_owl", Icon: "🦉", Title: "Night Owl", Description: "Visit between midnight and 5am", CoinReward: 75},
	{ID: "music_lover", Icon: "🎵", Title: "Music Lover", Description: "Open the music player", CoinReward: 20},
	{ID: "radio_listener", Icon: "📻", Title: "Radio Listener", Description: "Tune into the live radio", CoinReward: 30},
	{ID: "capsule_opener", Icon: "⏳", Title: "Time Traveler", Description: "Visit the time capsule", CoinReward: 30},
	{ID: "secret_finder", Icon: "🔮", Title: "Secret Found", Description: "Find the hidden page", CoinReward: 100},
	{ID: "shopper", Icon: "🛍️", Title: "Shopping Spree", Description: "Buy something from the shop", CoinReward: 25},
	{ID: "rich", Icon: "💰", Title: "High Roller", Description: "Accumulate 500 Dancoins", CoinReward: 0},
	{ID: "os_user", Icon: "🖥️", Title: "OS User", Description: "Open a window on the OS desktop", CoinReward: 20},
	{ID: "os_hacker", Icon: "💀", Title: "Hacker", Description: "Run a command in the OS terminal", CoinReward: 30},
	{ID: "os_multitask", Icon: "🪟", Title: "Multitasker", Description: "Have 5 OS windows open at once", CoinReward: 50},
	{ID: "os_dev", Icon: "🧮", Title: "Dev Mode", Description: "Use the OS calculator", CoinReward: 15},
	{ID: MetaFiveAchievements, Icon: "🎖️", Title: "Collector", Description: "Unlock 5 achievements", CoinReward: 60},
	{ID: MetaAllAchievements, Icon: "👑", Title: "Legend", Description: "Unlock every achievement", CoinReward: 500},
}

var catalogByID = func() map[string]domain.Achievement {
	m := make(map[string]domain.Achievement, len(Catalog))
	for _, a := range Catalog {
		m[a.ID] = a
	}
	return m
}()

// Lookup returns the catalog entry for id.
func Lookup(id string) (domain.Achievement, bool) {
	a, ok := catalogByID[id]
	return a, ok
}

// KnownPages is every trackable section of the site; visiting all of them
// completes the completionist achievement.
var KnownPages = []string{
	"home",
	"feed",
	"profile",
	"achievements",
	"shop",
	"games",
	"guestbook",
	"vault",
	"time-capsule",
	"universe",
	"radio",
	"os",
}
