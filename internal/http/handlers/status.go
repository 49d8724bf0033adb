package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is the agent's one-look summary endpoint.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":          h.Session.UserID,
		"token_expires_at": h.Session.ExpiresAt,
		"token_expiring":   h.Session.ExpiresWithin(time.Hour),
		"balance":          h.Ledger.Balance(),
		"can_claim_daily":  h.Ledger.CanClaimDaily(),
		"unlocked":         len(h.Engine.Unlocked()),
		"typing_now":       len(h.Typing.Active()),
	})
}

// Health is a trivial liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
