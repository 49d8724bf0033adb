package handlers

import (
	"net/http"
	"strconv"

	"spacedan/internal/domain"

	"github.com/gin-gonic/gin"
)

// Balance returns the cached balance without touching the network.
func (h *Handler) Balance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"balance":         h.Ledger.Balance(),
		"can_claim_daily": h.Ledger.CanClaimDaily(),
		"last_daily_at":   h.Ledger.LastDailyAt(),
	})
}

// RefreshBalance forces a pull from the backend and returns the result.
func (h *Handler) RefreshBalance(c *gin.Context) {
	h.Ledger.RefreshBalance(c.Request.Context())
	h.Balance(c)
}

// ClaimDaily claims the daily bonus.
func (h *Handler) ClaimDaily(c *gin.Context) {
	res, err := h.Ledger.ClaimDaily(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bonus": res.Bonus, "balance": res.Balance})
}

type transferRequest struct {
	ToUserID string `json:"to_user_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
	Message  string `json:"message"`
}

// Transfer sends coins to another user.
func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	res, err := h.Ledger.Transfer(c.Request.Context(), req.ToUserID, req.Amount, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transfer_id":  res.TransferID,
		"fee":          res.Fee,
		"net_received": res.NetReceived,
		"from_balance": res.FromBalance,
	})
}

type donateRequest struct {
	FundID string `json:"fund_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

// Donate contributes to the community fund.
func (h *Handler) Donate(c *gin.Context) {
	var req donateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	res, err := h.Ledger.DonateToFund(c.Request.Context(), req.FundID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"donated":      res.Donated,
		"fund_total":   res.FundTotal,
		"goal_reached": res.GoalReached,
		"new_balance":  res.NewBalance,
	})
}

// History returns recent ledger rows.
func (h *Handler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.Ledger.History(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}

type purchaseRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// Purchase buys a shop item.
func (h *Handler) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	res, err := h.Shop.Purchase(c.Request.Context(), req.ItemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": res.ItemID, "new_balance": res.NewBalance})
}

type equipRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	Equip  *bool  `json:"equip" binding:"required"`
}

// Equip equips or unequips an owned item.
func (h *Handler) Equip(c *gin.Context) {
	var req equipRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	res, err := h.Shop.SetEquipped(c.Request.Context(), req.ItemID, *req.Equip)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": res.ItemID, "equipped": res.Equipped})
}

// OwnedItems lists purchased and equipped item ids.
func (h *Handler) OwnedItems(c *gin.Context) {
	ctx := c.Request.Context()
	owned, err := h.Shop.Owned(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	equipped, err := h.Shop.Equipped(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchased": owned, "equipped": equipped})
}
