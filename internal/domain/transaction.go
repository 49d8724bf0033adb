package domain

import "time"

// TransactionType is the business reason for a ledger entry.
type TransactionType string

const (
	TxAchievement      TransactionType = "achievement"
	TxGameReward       TransactionType = "game_reward"
	TxPageVisit        TransactionType = "page_visit"
	TxDailyBonus       TransactionType = "daily_bonus"
	TxPurchase         TransactionType = "purchase"
	TxTransferSent     TransactionType = "transfer_sent"
	TxTransferReceived TransactionType = "transfer_received"
	TxMigration        TransactionType = "migration"
	TxDonation         TransactionType = "donation"
)

// Transaction is one row of the server-owned append-only ledger.
// The client never originates a transaction id; rows arrive read-only
// from the history endpoint.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Profile is the balance view of a user as served by the backend.
// LastDailyAt is a convenience field; when absent the client falls back
// to the most recent daily_bonus transaction.
type Profile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username,omitempty"`
	Balance     int64      `json:"balance"`
	LastDailyAt *time.Time `json:"last_daily_at,omitempty"`
}
