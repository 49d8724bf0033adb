package domain

// Transfer limits and fee, enforced authoritatively by the server.
// The client only fast-fails below the minimum to save a round trip.
const (
	TransferMin    int64 = 10
	TransferMax    int64 = 500
	TransferFeePct       = 5
)

// DailyBonusCooldown is advisory on the client: the server rejects early
// claims regardless of what the local clock says.
// 20h rolling window, not a calendar-day reset.
const DailyBonusCooldownHours = 20

// AwardResult is the response of the atomic award_coins operation.
type AwardResult struct {
	Success bool   `json:"success"`
	Balance int64  `json:"balance"`
	Awarded int64  `json:"awarded,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ClaimResult is the response of claim_daily_bonus. A cooldown rejection
// comes back as Success=false with Reason="cooldown", not as a transport
// error.
type ClaimResult struct {
	Success bool   `json:"success"`
	Bonus   int64  `json:"bonus,omitempty"`
	Balance int64  `json:"balance,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// TransferResult is the response of transfer_coins. FromBalance is the
// sender's authoritative balance; the receiver's balance is never derived
// client-side.
type TransferResult struct {
	Success     bool   `json:"success"`
	TransferID  string `json:"transfer_id"`
	Fee         int64  `json:"fee"`
	NetReceived int64  `json:"net_received"`
	FromBalance int64  `json:"from_balance"`
}

// DonationResult is the response of donate_to_fund.
type DonationResult struct {
	Success     bool  `json:"success"`
	Donated     int64 `json:"donated"`
	FundTotal   int64 `json:"fund_total"`
	GoalReached bool  `json:"goal_reached"`
	NewBalance  int64 `json:"new_balance"`
}

// MigrateResult is the response of the one-time legacy coin migration.
type MigrateResult struct {
	Success  bool  `json:"success"`
	Migrated int64 `json:"migrated,omitempty"`
	Balance  int64 `json:"balance,omitempty"`
}
