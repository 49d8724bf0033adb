package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spacedan/internal/achievements"
	"spacedan/internal/config"
	"spacedan/internal/domain"
	"spacedan/internal/events"
	httpServer "spacedan/internal/http"
	"spacedan/internal/http/handlers"
	"spacedan/internal/ledger"
	"spacedan/internal/likes"
	"spacedan/internal/logger"
	"spacedan/internal/reactions"
	"spacedan/internal/realtime"
	"spacedan/internal/rpc"
	"spacedan/internal/session"
	"spacedan/internal/shop"
	"spacedan/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	sess, err := session.New(cfg.AuthToken, cfg.JWTSecret)
	if err != nil {
		logger.Fatal("invalid auth token", "err", err)
	}
	if sess.ExpiresWithin(time.Hour) {
		logger.Warn("auth token expires soon", "expires_at", sess.ExpiresAt)
	}

	var st store.Store
	if cfg.RedisAddr != "" {
		rs := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(context.Background()); err != nil {
			logger.Fatal("redis unreachable", "addr", cfg.RedisAddr, "err", err)
		}
		defer rs.Close()
		st = rs
	} else {
		logger.Warn("REDIS_ADDR not set, local state will not survive restarts")
		st = store.NewMemory()
	}

	rpcClient := rpc.New(cfg.APIBaseURL, cfg.AuthToken, cfg.RPCTimeout)
	bus := events.NewBus()

	led := ledger.New(rpcClient, st, bus, sess.UserID)
	engine := achievements.NewEngine(st, led, bus, sess.UserID)
	reconciler := reactions.NewReconciler(rpcClient)
	likeClient := likes.New(rpcClient, st)
	shopClient := shop.New(rpcClient, st, bus, sess.UserID)
	shopClient.OnBalance = func(balance int64) {
		led.AdoptBalance(balance, domain.TxPurchase)
	}
	typing := reactions.NewTypingTracker(reactions.DefaultTypingTTL)
	defer typing.Close()

	// Cross-component wiring through the bus: reaching 500 coins and the
	// first purchase are themselves achievements.
	bus.Coins.Subscribe(func(ev events.CoinsChanged) {
		if ev.Balance >= 500 {
			engine.Unlock(context.Background(), "rich")
		}
	})
	bus.Purchases.Subscribe(func(events.ItemPurchased) {
		engine.Unlock(context.Background(), "shopper")
	})
	bus.Achievements.Subscribe(func(ev events.AchievementUnlocked) {
		logger.Info("unlocked", "title", ev.Achievement.Title, "total", ev.Total)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startup, cancelStartup := context.WithTimeout(ctx, 30*time.Second)
	if err := engine.Load(startup); err != nil {
		logger.Fatal("load achievements", "err", err)
	}
	// Migration before first refresh, as on web login.
	if err := led.MigrateLegacyCoins(startup); err != nil {
		logger.Error("legacy coin migration failed, will retry next start", "err", err)
	}
	led.RefreshBalance(startup)
	cancelStartup()

	rt := realtime.NewManager(cfg.WSURL, cfg.AuthToken)
	go rt.Run(ctx)

	if _, err := led.SubscribeRealtime(rt); err != nil {
		logger.Error("balance channel subscribe failed", "err", err)
	}

	var universe *realtime.Subscription
	if cfg.UniverseID != "" {
		universe, err = rt.Subscribe("universe", cfg.UniverseID, reactions.TypingHandlers(typing))
		if err != nil {
			logger.Error("universe channel subscribe failed", "err", err)
		} else if err := universe.Track(map[string]any{"online": true}); err != nil {
			logger.Warn("presence track failed", "err", err)
		}
	}

	h := &handlers.Handler{
		Session:   sess,
		Ledger:    led,
		Engine:    engine,
		Reactions: reconciler,
		Likes:     likeClient,
		Shop:      shopClient,
		Typing:    typing,
		Universe:  universe,

		DisplayName: cfg.DisplayName,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpServer.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:    "127.0.0.1:" + cfg.AgentPort,
		Handler: r,
	}

	go func() {
		logger.Info("agent listening", "addr", srv.Addr, "user", sess.UserID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	if universe != nil {
		universe.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", "err", err)
	}

	logger.Info("agent exited")
}
