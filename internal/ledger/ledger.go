package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/logger"
	"spacedan/internal/metrics"
	"spacedan/internal/realtime"
	"spacedan/internal/rpc"
	"spacedan/internal/store"
)

// ErrBelowMinimum is raised locally before any remote call when a transfer
// amount is under the minimum.
var ErrBelowMinimum = fmt.Errorf("transfer amount below minimum of %d", domain.TransferMin)

// Client is the Dancoin ledger client. It holds a cached copy of the
// server-owned balance; the cache may be briefly stale and is overwritten
// unconditionally by every realtime push. The server is the sole arbiter
// of balance ordering across concurrent clients.
type Client struct {
	rpc    *rpc.Client
	store  store.Store
	coins  *events.Topic[events.CoinsChanged]
	userID string

	mu          sync.Mutex
	balance     int64
	lastDailyAt *time.Time
}

func New(rpcClient *rpc.Client, st store.Store, bus *events.Bus, userID string) *Client {
	return &Client{
		rpc:    rpcClient,
		store:  st,
		coins:  bus.Coins,
		userID: userID,
	}
}

// UserID returns the account the ledger is bound to.
func (c *Client) UserID() string { return c.userID }

// Balance returns the cached balance.
func (c *Client) Balance() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

// LastDailyAt returns the cached time of the last daily-bonus claim, nil
// when the user never claimed.
func (c *Client) LastDailyAt() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastDailyAt == nil {
		return nil
	}
	t := *c.lastDailyAt
	return &t
}

func (c *Client) setBalance(balance int64, txType domain.TransactionType, lastDaily *time.Time) {
	c.mu.Lock()
	c.balance = balance
	if lastDaily != nil {
		c.lastDailyAt = lastDaily
	}
	c.mu.Unlock()

	// Publish outside the lock: subscribers may read back into the client.
	c.coins.Publish(events.CoinsChanged{Balance: balance, Type: txType})
}

// AdoptBalance installs an authoritative balance returned by another
// component's atomic remote operation (e.g. a shop purchase).
func (c *Client) AdoptBalance(balance int64, txType domain.TransactionType) {
	c.setBalance(balance, txType, nil)
}

// RefreshBalance pulls the current balance. When the profile's convenience
// last-daily field is absent it falls back to the most recent daily_bonus
// transaction. Read failures are logged and leave the cache unchanged so
// callers keep rendering the previous value.
func (c *Client) RefreshBalance(ctx context.Context) {
	profile, err := c.rpc.GetProfile(ctx, c.userID)
	if err != nil {
		logger.Error("ledger: refresh balance failed", "err", err)
		return
	}

	lastDaily := profile.LastDailyAt
	if lastDaily == nil {
		txs, err := c.rpc.History(ctx, domain.TxDailyBonus, 1, 0)
		if err != nil {
			logger.Warn("ledger: daily-bonus fallback query failed", "err", err)
		} else if len(txs) > 0 {
			lastDaily = &txs[0].CreatedAt
		}
	}

	c.setBalance(profile.Balance, "", lastDaily)
}

// AwardCoins invokes the atomic remote award. The cache is updated only on
// success. A transport failure returns nil after logging: the caller
// treats it as "no visible effect", never as a crash.
func (c *Client) AwardCoins(ctx context.Context, amount int64, txType domain.TransactionType, reference, description string) *domain.AwardResult {
	res, err := c.rpc.AwardCoins(ctx, amount, txType, reference, description)
	if err != nil {
		logger.Error("ledger: award failed", "type", txType, "amount", amount, "err", err)
		return nil
	}
	if res.Success {
		c.setBalance(res.Balance, txType, nil)
	}
	return res
}

// ClaimDaily claims the daily bonus. The server enforces the 20h rolling
// cooldown authoritatively; on a cooldown rejection the cache is force
// resynced, closing the two-tabs-claiming race.
func (c *Client) ClaimDaily(ctx context.Context) (*domain.ClaimResult, error) {
	res, err := c.rpc.ClaimDailyBonus(ctx)
	if err != nil {
		if errors.Is(err, rpc.ErrCooldown) {
			c.RefreshBalance(ctx)
		}
		return res, err
	}

	now := time.Now()
	c.setBalance(res.Balance, domain.TxDailyBonus, &now)
	return res, nil
}

// CanClaimDaily is the advisory cooldown display. The rolling 20h window
// is authoritative server-side; this only exists so the UI can grey the
// button out.
func (c *Client) CanClaimDaily() bool {
	last := c.LastDailyAt()
	if last == nil {
		return true
	}
	return time.Since(*last) > domain.DailyBonusCooldownHours*time.Hour
}

// Transfer sends coins to another user. Amounts under the minimum fail
// fast locally; fee computation and the atomic debit/credit stay entirely
// remote. Only the sender's balance is taken from the response; the
// receiver's balance is never derived client-side.
func (c *Client) Transfer(ctx context.Context, toUserID string, amount int64, message string) (*domain.TransferResult, error) {
	if amount < domain.TransferMin {
		return nil, ErrBelowMinimum
	}

	res, err := c.rpc.TransferCoins(ctx, toUserID, amount, message)
	if err != nil {
		return nil, err
	}

	c.setBalance(res.FromBalance, domain.TxTransferSent, nil)
	return res, nil
}

// DonateToFund contributes to the community fund.
func (c *Client) DonateToFund(ctx context.Context, fundID string, amount int64) (*domain.DonationResult, error) {
	res, err := c.rpc.DonateToFund(ctx, fundID, amount)
	if err != nil {
		return nil, err
	}

	c.setBalance(res.NewBalance, domain.TxDonation, nil)
	return res, nil
}

// History returns recent ledger rows for the bound user.
func (c *Client) History(ctx context.Context, limit, offset int) ([]domain.Transaction, error) {
	return c.rpc.History(ctx, "", limit, offset)
}

// MigrateLegacyCoins moves pre-authentication locally accumulated coins
// into the ledger, at most once. Dual-guarded: the local marker is a fast
// path that skips the network call, the server check is the source of
// truth (the marker can be lost with a cleared store or duplicated across
// machines).
func (c *Client) MigrateLegacyCoins(ctx context.Context) error {
	markerKey := store.UserKey(store.KeyMigrated, c.userID)

	if _, done, err := c.store.Get(ctx, markerKey); err != nil {
		logger.Warn("ledger: migration marker read failed", "err", err)
	} else if done {
		return nil
	}

	legacy := c.legacyCoins(ctx)
	if legacy <= 0 {
		if err := c.store.Set(ctx, markerKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			logger.Warn("ledger: migration marker write failed", "err", err)
		}
		return nil
	}

	res, err := c.rpc.MigrateLegacyCoins(ctx, legacy)
	if err != nil {
		if errors.Is(err, rpc.ErrAlreadyMigrated) {
			// Already credited on another machine: adopt the marker
			// without crediting again.
			if serr := c.store.Set(ctx, markerKey, time.Now().UTC().Format(time.RFC3339)); serr != nil {
				logger.Warn("ledger: migration marker write failed", "err", serr)
			}
			return nil
		}
		// Transport failure: leave the marker unset so the next login
		// retries. The server-side guard makes the retry safe.
		return err
	}

	if res.Success {
		_ = c.store.Delete(ctx, store.KeyLegacyCoins)
		_ = c.store.Delete(ctx, store.UserKey(store.KeyDailyClaimed, c.userID))
		if err := c.store.Set(ctx, markerKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			logger.Warn("ledger: migration marker write failed", "err", err)
		}
		logger.Info("ledger: legacy coins migrated", "amount", legacy)
		if res.Balance > 0 {
			c.setBalance(res.Balance, domain.TxMigration, nil)
		}
	}
	return nil
}

func (c *Client) legacyCoins(ctx context.Context) int64 {
	raw, ok, err := c.store.Get(ctx, store.KeyLegacyCoins)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// balancePush is the row-change payload of the per-user balance channel.
type balancePush struct {
	Balance     *int64     `json:"balance"`
	LastDailyAt *time.Time `json:"last_daily_at"`
}

// SubscribeRealtime opens the per-user balance channel. Every push
// unconditionally overwrites the cache: balance is a scalar authoritative
// value, not mergeable state, so the server always wins over whatever the
// client believes.
func (c *Client) SubscribeRealtime(rt *realtime.Manager) (*realtime.Subscription, error) {
	return rt.Subscribe("balance", c.userID, realtime.Handlers{
		OnChange: func(rc realtime.RowChange) {
			var push balancePush
			if err := json.Unmarshal(rc.New, &push); err != nil {
				logger.Warn("ledger: malformed balance push", "err", err)
				return
			}
			if push.Balance == nil {
				return
			}
			metrics.BalancePushes.Inc()
			c.setBalance(*push.Balance, "", push.LastDailyAt)
		},
	})
}
