package main

import (
	"context"
	"log"
	"os"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/events"
	"spacedan/internal/ledger"
	"spacedan/internal/realtime"
	"spacedan/internal/rpc"
	"spacedan/internal/store"
)

func main() {
	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8091"
	}
	wsURL := os.Getenv("WS_URL")
	if wsURL == "" {
		wsURL = "ws://127.0.0.1:8091/ws"
	}
	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		token = "smoke-user"
	}
	peer := os.Getenv("PEER_USER_ID")
	if peer == "" {
		peer = "smoke-peer"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := rpc.New(baseURL, token, 10*time.Second)
	bus := events.NewBus()
	st := store.NewMemory()
	led := ledger.New(client, st, bus, token)

	pushes := make(chan events.CoinsChanged, 16)
	bus.Coins.Subscribe(func(e events.CoinsChanged) {
		select {
		case pushes <- e:
		default:
		}
	})

	rt := realtime.NewManager(wsURL, token)
	go rt.Run(ctx)
	sub, err := led.SubscribeRealtime(rt)
	if err != nil {
		log.Fatalf("subscribe balance: %v", err)
	}
	defer sub.Close()

	led.RefreshBalance(ctx)
	log.Printf("starting balance: %d", led.Balance())

	// award
	if res := led.AwardCoins(ctx, 20, domain.TxGameReward, "smoke", "smoke award"); res != nil {
		log.Printf("award ok, balance %d", res.Balance)
	} else {
		log.Fatal("award failed")
	}

	// claim daily twice, second one should hit the cooldown
	if _, err := led.ClaimDaily(ctx); err != nil {
		log.Printf("first claim: %v", err)
	} else {
		log.Printf("first claim ok, balance %d", led.Balance())
	}
	if _, err := led.ClaimDaily(ctx); err == nil {
		log.Fatal("second claim unexpectedly succeeded")
	} else {
		log.Printf("second claim rejected as expected: %v", err)
	}

	// transfer below the minimum must fail before any remote call
	if _, err := led.Transfer(ctx, peer, domain.TransferMin-1, "too small"); err == nil {
		log.Fatal("undersized transfer unexpectedly succeeded")
	} else {
		log.Printf("undersized transfer rejected locally: %v", err)
	}

	// real transfer
	tr, err := led.Transfer(ctx, peer, 50, "smoke transfer")
	if err != nil {
		log.Fatalf("transfer: %v", err)
	}
	log.Printf("transfer ok: fee=%d net=%d balance=%d", tr.Fee, tr.NetReceived, tr.FromBalance)

	// wait for a realtime balance push to land
	waitPush := func() {
		deadline := time.After(3 * time.Second)
		for {
			select {
			case e := <-pushes:
				log.Printf("balance event: %d (%s)", e.Balance, e.Type)
				return
			case <-deadline:
				log.Println("no balance push within 3s (devserver excludes the acting connection)")
				return
			}
		}
	}
	waitPush()

	log.Printf("final balance: %d", led.Balance())
	log.Println("smoke finished")
}
