package handlers

import (
	"errors"
	"net/http"

	"spacedan/internal/achievements"
	"spacedan/internal/ledger"
	"spacedan/internal/likes"
	"spacedan/internal/optimistic"
	"spacedan/internal/reactions"
	"spacedan/internal/realtime"
	"spacedan/internal/rpc"
	"spacedan/internal/session"
	"spacedan/internal/shop"

	"github.com/gin-gonic/gin"
)

// Handler exposes the client components over the agent's local API.
type Handler struct {
	Session   *session.Session
	Ledger    *ledger.Client
	Engine    *achievements.Engine
	Reactions *reactions.Reconciler
	Likes     *likes.Likes
	Shop      *shop.Client
	Typing    *reactions.TypingTracker

	// Universe is the paired-universe channel used for typing
	// broadcasts; nil when no universe is configured.
	Universe *realtime.Subscription

	// DisplayName is the human-readable name sent with typing
	// broadcasts. Optional; the user id fills in when unset.
	DisplayName string
}

func (h *Handler) displayName() string {
	if h.DisplayName != "" {
		return h.DisplayName
	}
	return h.Session.UserID
}

// writeError maps component errors onto HTTP statuses. Business-rule
// rejections and in-flight drops are client errors; everything else is a
// bad gateway since the agent itself did not fail.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, optimistic.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "operation already in flight"})
	case errors.Is(err, ledger.ErrBelowMinimum):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, rpc.ErrCooldown):
		c.JSON(http.StatusConflict, gin.H{"error": "daily bonus on cooldown"})
	case errors.Is(err, rpc.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	case errors.Is(err, rpc.ErrAlreadyPurchased):
		c.JSON(http.StatusConflict, gin.H{"error": "already purchased"})
	case errors.Is(err, rpc.ErrAlreadyMigrated):
		c.JSON(http.StatusConflict, gin.H{"error": "already migrated"})
	case errors.Is(err, rpc.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session rejected by backend"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
