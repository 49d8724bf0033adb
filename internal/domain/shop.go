package domain

import "time"

// ShopItem is a purchasable cosmetic from the shop catalog.
type ShopItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	IsEquipped  bool      `json:"is_equipped"`
	PurchasedAt time.Time `json:"purchased_at,omitempty"`
}

// PurchaseResult is the response of the atomic purchase_item operation.
type PurchaseResult struct {
	Success    bool   `json:"success"`
	ItemID     string `json:"item_id"`
	NewBalance int64  `json:"new_balance"`
	Reason     string `json:"reason,omitempty"`
}

// EquipResult is the response of equip_item.
type EquipResult struct {
	Success  bool   `json:"success"`
	ItemID   string `json:"item_id"`
	Equipped bool   `json:"equipped"`
}

// Fund is the active community fund users can donate to.
type Fund struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Goal   int64  `json:"goal"`
	Total  int64  `json:"total"`
	Status string `json:"status"`
}
