package events

import (
	"sync"

	"spacedan/internal/domain"
)

// Topic is a typed fire-and-forget publish/subscribe channel. One topic per
// concern replaces the single untyped event bus of the legacy client:
// subscribers can only ever see payloads of the topic's type.
type Topic[T any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(T)
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{handlers: make(map[int]func(T))}
}

// Subscribe registers h and returns an unsubscribe func. Handlers run on
// the publisher's goroutine and must not block.
func (t *Topic[T]) Subscribe(h func(T)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}
}

// Publish delivers ev to every current subscriber. It is a signal, not a
// queryable log: subscribers that join later never see past events.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	hs := make([]func(T), 0, len(t.handlers))
	for _, h := range t.handlers {
		hs = append(hs, h)
	}
	t.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// AchievementUnlocked fires once per new unlock, payload carries the
// achievement plus the new total count.
type AchievementUnlocked struct {
	Achievement domain.Achievement
	Total       int
}

// CoinsChanged fires whenever the cached balance moves, locally or via a
// realtime push.
type CoinsChanged struct {
	Balance int64
	Type    domain.TransactionType
}

// ItemPurchased fires after a successful shop purchase.
type ItemPurchased struct {
	ItemID     string
	NewBalance int64
}

// ItemEquipped fires after equip/unequip.
type ItemEquipped struct {
	ItemID   string
	Equipped bool
}

// Bus groups the topics wired across components.
type Bus struct {
	Achievements *Topic[AchievementUnlocked]
	Coins        *Topic[CoinsChanged]
	Purchases    *Topic[ItemPurchased]
	Equipment    *Topic[ItemEquipped]
}

func NewBus() *Bus {
	return &Bus{
		Achievements: NewTopic[AchievementUnlocked](),
		Coins:        NewTopic[CoinsChanged](),
		Purchases:    NewTopic[ItemPurchased](),
		Equipment:    NewTopic[ItemEquipped](),
	}
}
