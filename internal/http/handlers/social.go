package handlers

import (
	"net/http"

	"spacedan/internal/achievements"
	"spacedan/internal/domain"
	"spacedan/internal/reactions"

	"github.com/gin-gonic/gin"
)

// Achievements returns the catalog annotated with unlock state.
func (h *Handler) Achievements(c *gin.Context) {
	type entry struct {
		domain.Achievement
		Unlocked bool `json:"unlocked"`
	}

	out := make([]entry, 0, len(achievements.Catalog))
	for _, a := range achievements.Catalog {
		out = append(out, entry{Achievement: a, Unlocked: h.Engine.HasUnlocked(a.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"achievements": out, "unlocked_count": len(h.Engine.Unlocked())})
}

// UnlockAchievement unlocks by id, reporting whether this call caused it.
func (h *Handler) UnlockAchievement(c *gin.Context) {
	id := c.Param("id")
	if _, known := achievements.Lookup(id); !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown achievement"})
		return
	}
	unlocked := h.Engine.Unlock(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"unlocked": unlocked})
}

type visitRequest struct {
	Page string `json:"page" binding:"required"`
}

// TrackVisit records a section visit.
func (h *Handler) TrackVisit(c *gin.Context) {
	var req visitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	isNew, total := h.Engine.TrackPageVisit(c.Request.Context(), req.Page)
	c.JSON(http.StatusOK, gin.H{"is_new": isNew, "total": total})
}

type reactionRequest struct {
	Type domain.ReactionType `json:"type" binding:"required"`
}

// ToggleReaction toggles the local user's reaction on a post and returns
// the (possibly speculative) metadata.
func (h *Handler) ToggleReaction(c *gin.Context) {
	postID := c.Param("id")

	var req reactionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if err := h.Reactions.Toggle(c.Request.Context(), postID, req.Type); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Reactions.Metadata(postID))
}

// PostReactions returns the cached metadata of a post.
func (h *Handler) PostReactions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Reactions.Metadata(c.Param("id")))
}

// ToggleLike flips the like on a counter-backed post.
func (h *Handler) ToggleLike(c *gin.Context) {
	postID := c.Param("id")
	if err := h.Likes.Toggle(c.Request.Context(), postID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Likes.State(postID))
}

// Presence returns who is typing in the universe channel right now.
func (h *Handler) Presence(c *gin.Context) {
	typists := h.Typing.Active()
	if typists == nil {
		typists = []reactions.Typist{}
	}
	c.JSON(http.StatusOK, gin.H{"typing": typists})
}

type typingRequest struct {
	IsTyping *bool `json:"is_typing" binding:"required"`
}

// SetTyping broadcasts the local user's typing state to the universe.
func (h *Handler) SetTyping(c *gin.Context) {
	if h.Universe == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no universe configured"})
		return
	}

	var req typingRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if err := reactions.SendTyping(h.Universe, h.Session.UserID, h.displayName(), *req.IsTyping); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
