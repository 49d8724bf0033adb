package domain

// Achievement is one entry of the static catalog. The catalog is defined
// at process start and never mutated at runtime.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	CoinReward  int64  `json:"coin_reward"`
}
