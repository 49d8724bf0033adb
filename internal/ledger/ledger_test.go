package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/rpc"
	"spacedan/internal/store"
)

// fakeBackend is a minimal remote for ledger tests. Balance arithmetic and
// idempotency live here, like on the real server.
type fakeBackend struct {
	mu        sync.Mutex
	balance   int64
	lastDaily *time.Time
	migrated  bool
	hits      map[string]int
	txs       []domain.Transaction
}

// recordLocked appends a ledger row; every balance mutation pairs with
// exactly one.
func (f *fakeBackend) recordLocked(txType domain.TransactionType, amount int64) {
	f.txs = append(f.txs, domain.Transaction{
		Type:         txType,
		Amount:       amount,
		BalanceAfter: f.balance,
		CreatedAt:    time.Now(),
	})
}

func (f *fakeBackend) transactions() []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transaction(nil), f.txs...)
}

func newFakeBackend(balance int64) *fakeBackend {
	return &fakeBackend{balance: balance, hits: make(map[string]int)}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	count := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.hits[name]++
			f.mu.Unlock()
			h(w, r)
		}
	}

	mux.HandleFunc("/api/v1/profile/", count("profile", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(domain.Profile{
			ID:          strings.TrimPrefix(r.URL.Path, "/api/v1/profile/"),
			Balance:     f.balance,
			LastDailyAt: f.lastDaily,
		})
	}))

	mux.HandleFunc("/api/v1/economy/history", count("history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Transaction{})
	}))

	mux.HandleFunc("/api/v1/economy/award", count("award", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount int64                  `json:"amount"`
			Type   domain.TransactionType `json:"type"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.balance += req.Amount
		f.recordLocked(req.Type, req.Amount)
		res := domain.AwardResult{Success: true, Balance: f.balance, Awarded: req.Amount}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(res)
	}))

	mux.HandleFunc("/api/v1/economy/daily", count("daily", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.lastDaily != nil && time.Since(*f.lastDaily) < domain.DailyBonusCooldownHours*time.Hour {
			json.NewEncoder(w).Encode(domain.ClaimResult{Success: false, Reason: "cooldown"})
			return
		}
		now := time.Now()
		f.lastDaily = &now
		f.balance += 30
		json.NewEncoder(w).Encode(domain.ClaimResult{Success: true, Bonus: 30, Balance: f.balance})
	}))

	mux.HandleFunc("/api/v1/economy/transfer", count("transfer", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.balance < req.Amount {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "insufficient balance"})
			return
		}
		f.balance -= req.Amount
		fee := req.Amount * domain.TransferFeePct / 100
		json.NewEncoder(w).Encode(domain.TransferResult{
			Success:     true,
			TransferID:  "t1",
			Fee:         fee,
			NetReceived: req.Amount - fee,
			FromBalance: f.balance,
		})
	}))

	mux.HandleFunc("/api/v1/economy/migrate", count("migrate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.migrated {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "already migrated"})
			return
		}
		f.migrated = true
		f.balance += req.Amount
		json.NewEncoder(w).Encode(domain.MigrateResult{Success: true, Migrated: req.Amount, Balance: f.balance})
	}))

	return mux
}

func (f *fakeBackend) hitCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func newTestLedger(t *testing.T, f *fakeBackend) (*Client, *events.Bus, store.Store) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	bus := events.NewBus()
	st := store.NewMemory()
	return New(rpc.New(srv.URL, "tok", 5*time.Second), st, bus, "u1"), bus, st
}

func TestAwardUpdatesBalanceAndPublishes(t *testing.T) {
	f := newFakeBackend(100)
	led, bus, _ := newTestLedger(t, f)

	var got []events.CoinsChanged
	bus.Coins.Subscribe(func(e events.CoinsChanged) { got = append(got, e) })

	res := led.AwardCoins(context.Background(), 20, domain.TxGameReward, "snake", "high score")
	if res == nil || res.Balance != 120 {
		t.Fatalf("res = %+v; want balance 120", res)
	}
	if led.Balance() != 120 {
		t.Fatalf("cached balance = %d; want 120", led.Balance())
	}
	if len(got) != 1 || got[0].Balance != 120 || got[0].Type != domain.TxGameReward {
		t.Fatalf("coin events = %+v", got)
	}

	// the balance change carries exactly one ledger row
	txs := f.transactions()
	if len(txs) != 1 {
		t.Fatalf("ledger rows = %d; want 1", len(txs))
	}
	if txs[0].Type != domain.TxGameReward || txs[0].Amount != 20 || txs[0].BalanceAfter != 120 {
		t.Fatalf("ledger row = %+v; want game_reward +20 -> 120", txs[0])
	}
}

func TestAwardTransportFailureLeavesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	led := New(rpc.New(srv.URL, "tok", time.Second), store.NewMemory(), events.NewBus(), "u1")
	if res := led.AwardCoins(context.Background(), 20, domain.TxGameReward, "", ""); res != nil {
		t.Fatalf("res = %+v; want nil on transport failure", res)
	}
	if led.Balance() != 0 {
		t.Fatalf("cache moved on a failed award")
	}
}

func TestClaimDailyTwice(t *testing.T) {
	f := newFakeBackend(100)
	led, _, _ := newTestLedger(t, f)
	ctx := context.Background()

	res, err := led.ClaimDaily(ctx)
	if err != nil || !res.Success {
		t.Fatalf("first claim = %+v, %v", res, err)
	}
	if led.Balance() != 130 {
		t.Fatalf("balance = %d; want 130", led.Balance())
	}
	if led.CanClaimDaily() {
		t.Fatal("cooldown not armed after a successful claim")
	}

	_, err = led.ClaimDaily(ctx)
	if !errors.Is(err, rpc.ErrCooldown) {
		t.Fatalf("second claim err = %v; want ErrCooldown", err)
	}
	if led.Balance() != 130 {
		t.Fatalf("balance = %d after rejected claim; want 130", led.Balance())
	}
	// the rejection forces a resync against the server
	if f.hitCount("profile") == 0 {
		t.Fatal("cooldown rejection did not resync the balance")
	}
}

func TestTransferBelowMinimumNeverReachesServer(t *testing.T) {
	f := newFakeBackend(100)
	led, _, _ := newTestLedger(t, f)

	if _, err := led.Transfer(context.Background(), "peer", domain.TransferMin-1, ""); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v; want ErrBelowMinimum", err)
	}
	if f.hitCount("transfer") != 0 {
		t.Fatal("undersized transfer reached the server")
	}
}

func TestTransferAdoptsSenderBalance(t *testing.T) {
	f := newFakeBackend(100)
	led, _, _ := newTestLedger(t, f)

	res, err := led.Transfer(context.Background(), "peer", 50, "hi")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Fee != 2 || res.NetReceived != 48 {
		t.Fatalf("fee/net = %d/%d; want 2/48", res.Fee, res.NetReceived)
	}
	if led.Balance() != 50 {
		t.Fatalf("balance = %d; want 50", led.Balance())
	}
}

func TestMigrateOnce(t *testing.T) {
	f := newFakeBackend(0)
	led, _, st := newTestLedger(t, f)
	ctx := context.Background()

	st.Set(ctx, store.KeyLegacyCoins, "250")

	if err := led.MigrateLegacyCoins(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if led.Balance() != 250 {
		t.Fatalf("balance = %d; want 250", led.Balance())
	}
	// legacy value cleaned up
	if _, ok, _ := st.Get(ctx, store.KeyLegacyCoins); ok {
		t.Fatal("legacy coins key survived the migration")
	}

	// second call short-circuits on the marker
	if err := led.MigrateLegacyCoins(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if f.hitCount("migrate") != 1 {
		t.Fatalf("migrate hit the server %d times; want 1", f.hitCount("migrate"))
	}
}

func TestMigrateMarkerLost(t *testing.T) {
	f := newFakeBackend(0)
	led, _, st := newTestLedger(t, f)
	ctx := context.Background()

	st.Set(ctx, store.KeyLegacyCoins, "250")
	if err := led.MigrateLegacyCoins(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// a cleared store loses the marker but re-plants the legacy value;
	// the server guard must stop the double credit
	st.Delete(ctx, store.UserKey(store.KeyMigrated, "u1"))
	st.Set(ctx, store.KeyLegacyCoins, "250")

	if err := led.MigrateLegacyCoins(ctx); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	if led.Balance() != 250 {
		t.Fatalf("balance = %d; double credit", led.Balance())
	}

	// the marker is re-adopted, so a third call stays local
	hits := f.hitCount("migrate")
	if err := led.MigrateLegacyCoins(ctx); err != nil {
		t.Fatalf("third migrate: %v", err)
	}
	if f.hitCount("migrate") != hits {
		t.Fatal("marker not re-adopted after the server rejection")
	}
}

func TestMigrateNothingToMove(t *testing.T) {
	f := newFakeBackend(0)
	led, _, _ := newTestLedger(t, f)

	if err := led.MigrateLegacyCoins(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if f.hitCount("migrate") != 0 {
		t.Fatal("empty migration reached the server")
	}
}

func TestMigrateTransportFailureRetriesNextTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	st := store.NewMemory()
	ctx := context.Background()
	st.Set(ctx, store.KeyLegacyCoins, "250")

	led := New(rpc.New(srv.URL, "tok", time.Second), st, events.NewBus(), "u1")
	if err := led.MigrateLegacyCoins(ctx); err == nil {
		t.Fatal("expected transport error")
	}

	// no marker written: the next login retries
	if _, ok, _ := st.Get(ctx, store.UserKey(store.KeyMigrated, "u1")); ok {
		t.Fatal("marker written despite the transport failure")
	}
	if _, ok, _ := st.Get(ctx, store.KeyLegacyCoins); !ok {
		t.Fatal("legacy coins dropped despite the failed migration")
	}
}

func TestRefreshBalance(t *testing.T) {
	f := newFakeBackend(420)
	now := time.Now().Add(-2 * time.Hour)
	f.lastDaily = &now

	led, _, _ := newTestLedger(t, f)
	led.RefreshBalance(context.Background())

	if led.Balance() != 420 {
		t.Fatalf("balance = %d; want 420", led.Balance())
	}
	if led.CanClaimDaily() {
		t.Fatal("claim allowed 2h after the last one")
	}
}
