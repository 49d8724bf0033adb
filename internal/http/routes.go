package http

import (
	"spacedan/internal/http/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the agent's local control API. It binds to
// localhost by convention; there is no auth layer of its own, the agent's
// bearer token guards the remote side.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler) {
	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")

	v1.GET("/status", h.Status)

	// Economy
	v1.GET("/balance", h.Balance)
	v1.POST("/balance/refresh", h.RefreshBalance)
	v1.POST("/daily/claim", h.ClaimDaily)
	v1.POST("/transfer", h.Transfer)
	v1.POST("/donate", h.Donate)
	v1.GET("/history", h.History)

	// Shop
	v1.POST("/shop/purchase", h.Purchase)
	v1.POST("/shop/equip", h.Equip)
	v1.GET("/shop/items", h.OwnedItems)

	// Achievements
	v1.GET("/achievements", h.Achievements)
	v1.POST("/achievements/:id/unlock", h.UnlockAchievement)
	v1.POST("/visit", h.TrackVisit)

	// Reactions / likes
	v1.GET("/posts/:id/reactions", h.PostReactions)
	v1.POST("/posts/:id/reactions/toggle", h.ToggleReaction)
	v1.POST("/posts/:id/like", h.ToggleLike)

	// Typing presence
	v1.GET("/presence", h.Presence)
	v1.POST("/typing", h.SetTyping)
}
