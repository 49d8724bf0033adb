package shop

import (
	"context"
	"errors"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/logger"
	"spacedan/internal/rpc"
	"spacedan/internal/store"
)

// Purchaser is the slice of the rpc client the shop mutates through.
type Purchaser interface {
	PurchaseItem(ctx context.Context, itemID string) (*domain.PurchaseResult, error)
	EquipItem(ctx context.Context, itemID string, equip bool) (*domain.EquipResult, error)
}

// Client buys and equips shop items. Ownership is mirrored into the local
// store so the shop renders instantly on the next start; the server remains
// authoritative and duplicate purchases from another machine surface as
// business-rule rejections, adopted locally rather than retried.
type Client struct {
	rpc       Purchaser
	store     store.Store
	purchases *events.Topic[events.ItemPurchased]
	equipment *events.Topic[events.ItemEquipped]
	userID    string

	// OnBalance receives the authoritative post-purchase balance.
	OnBalance func(balance int64)
}

func New(rpcClient Purchaser, st store.Store, bus *events.Bus, userID string) *Client {
	return &Client{
		rpc:       rpcClient,
		store:     st,
		purchases: bus.Purchases,
		equipment: bus.Equipment,
		userID:    userID,
	}
}

// Purchase buys an item. The local owned set is a fast path only; the
// server enforces balance and dedupe atomically.
func (c *Client) Purchase(ctx context.Context, itemID string) (*domain.PurchaseResult, error) {
	ownedKey := store.UserKey(store.KeyPurchased, c.userID)

	if owned, err := c.store.HasMember(ctx, ownedKey, itemID); err != nil {
		logger.Warn("shop: owned check failed", "item", itemID, "err", err)
	} else if owned {
		return nil, rpc.ErrAlreadyPurchased
	}

	res, err := c.rpc.PurchaseItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, rpc.ErrAlreadyPurchased) {
			// Bought on another machine; adopt ownership without paying.
			if serr := c.store.AddMember(ctx, ownedKey, itemID); serr != nil {
				logger.Warn("shop: persist owned failed", "item", itemID, "err", serr)
			}
		}
		return nil, err
	}

	if err := c.store.AddMember(ctx, ownedKey, itemID); err != nil {
		logger.Warn("shop: persist owned failed", "item", itemID, "err", err)
	}

	if c.OnBalance != nil {
		c.OnBalance(res.NewBalance)
	}
	c.purchases.Publish(events.ItemPurchased{ItemID: itemID, NewBalance: res.NewBalance})
	return res, nil
}

// SetEquipped equips or unequips an owned item.
func (c *Client) SetEquipped(ctx context.Context, itemID string, equip bool) (*domain.EquipResult, error) {
	res, err := c.rpc.EquipItem(ctx, itemID, equip)
	if err != nil {
		return nil, err
	}

	equippedKey := store.UserKey(store.KeyEquipped, c.userID)
	var serr error
	if res.Equipped {
		serr = c.store.AddMember(ctx, equippedKey, itemID)
	} else {
		serr = c.store.RemoveMember(ctx, equippedKey, itemID)
	}
	if serr != nil {
		logger.Warn("shop: persist equipped failed", "item", itemID, "err", serr)
	}

	c.equipment.Publish(events.ItemEquipped{ItemID: itemID, Equipped: res.Equipped})
	return res, nil
}

// Owned lists locally known purchased item ids.
func (c *Client) Owned(ctx context.Context) ([]string, error) {
	return c.store.Members(ctx, store.UserKey(store.KeyPurchased, c.userID))
}

// Equipped lists locally known equipped item ids.
func (c *Client) Equipped(ctx context.Context) ([]string, error) {
	return c.store.Members(ctx, store.UserKey(store.KeyEquipped, c.userID))
}
