// devserver is an in-memory stand-in for the platform backend, for local
// development and smoke testing of the client. It implements the remote
// contract (atomic economy operations, delete-or-replace reactions, the
// realtime channel protocol) without any persistence.
package main

import (
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/logger"
	"spacedan/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type account struct {
	balance   int64
	lastDaily *time.Time
	migrated  bool
	purchased map[string]bool
	equipped  map[string]bool
	history   []domain.Transaction
}

type server struct {
	mu        sync.Mutex
	accounts  map[string]*account
	reactions map[string]map[string]domain.ReactionType // post -> user -> type
	likes     map[string]int
	seenReqs  map[string]bool

	hub *hub
}

func newServer() *server {
	return &server{
		accounts:  make(map[string]*account),
		reactions: make(map[string]map[string]domain.ReactionType),
		likes:     make(map[string]int),
		seenReqs:  make(map[string]bool),
		hub:       newHub(),
	}
}

func (s *server) account(userID string) *account {
	a, ok := s.accounts[userID]
	if !ok {
		a = &account{
			balance:   100,
			purchased: make(map[string]bool),
			equipped:  make(map[string]bool),
		}
		s.accounts[userID] = a
	}
	return a
}

func (s *server) record(userID string, a *account, txType domain.TransactionType, amount int64, ref, desc string) {
	a.history = append([]domain.Transaction{{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: a.balance,
		Reference:    ref,
		Description:  desc,
		CreatedAt:    time.Now().UTC(),
	}}, a.history...)
}

// userID reads the caller identity from the bearer token: a JWT sub when
// parsable, the raw token otherwise. Good enough for a dev tool.
func userID(c *gin.Context) string {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		return ""
	}
	if sess, err := session.New(token, ""); err == nil {
		return sess.UserID
	}
	return token
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8091"
	}
	logger.Init(os.Getenv("LOG_LEVEL"), false)

	s := newServer()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/profile/:id", s.getProfile)
	v1.GET("/economy/history", s.getHistory)
	v1.POST("/economy/award", s.award)
	v1.POST("/economy/daily", s.claimDaily)
	v1.POST("/economy/transfer", s.transfer)
	v1.POST("/economy/donate", s.donate)
	v1.GET("/economy/fund", s.activeFund)
	v1.POST("/economy/migrate", s.migrate)
	v1.POST("/shop/purchase", s.purchase)
	v1.POST("/shop/equip", s.equip)
	v1.GET("/posts/:id/reactions", s.getReactions)
	v1.POST("/posts/:id/reactions/toggle", s.toggleReaction)
	v1.GET("/posts/:id/likes", s.likeCount)
	v1.POST("/posts/:id/likes/up", s.likeUp)
	v1.POST("/posts/:id/likes/down", s.likeDown)

	r.GET("/ws", s.hub.serve)

	logger.Info("devserver listening", "port", port)
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("devserver", "err", err)
	}
}

func (s *server) getProfile(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	a := s.account(id)
	p := domain.Profile{ID: id, Balance: a.balance, LastDailyAt: a.lastDaily}
	s.mu.Unlock()
	c.JSON(http.StatusOK, p)
}

func (s *server) getHistory(c *gin.Context) {
	uid := userID(c)
	txType := c.Query("type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	s.mu.Lock()
	a := s.account(uid)
	out := make([]domain.Transaction, 0, limit)
	for _, tx := range a.history {
		if txType != "" && string(tx.Type) != txType {
			continue
		}
		out = append(out, tx)
		if len(out) >= limit {
			break
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *server) pushBalance(userID string, balance int64, lastDaily *time.Time) {
	s.hub.change("balance:"+userID, "profiles", gin.H{
		"balance":       balance,
		"last_daily_at": lastDaily,
	})
}

func (s *server) award(c *gin.Context) {
	var req struct {
		Amount      int64                  `json:"amount"`
		Type        domain.TransactionType `json:"type"`
		Reference   string                 `json:"reference"`
		Description string                 `json:"description"`
	}
	if err := c.BindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)
	a.balance += req.Amount
	s.record(uid, a, req.Type, req.Amount, req.Reference, req.Description)
	res := domain.AwardResult{Success: true, Balance: a.balance, Awarded: req.Amount}
	s.mu.Unlock()

	s.pushBalance(uid, res.Balance, nil)
	c.JSON(http.StatusOK, res)
}

const dailyBonus = 30

func (s *server) claimDaily(c *gin.Context) {
	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)

	if a.lastDaily != nil && time.Since(*a.lastDaily) < domain.DailyBonusCooldownHours*time.Hour {
		s.mu.Unlock()
		c.JSON(http.StatusOK, domain.ClaimResult{
			Success: false,
			Reason:  "cooldown",
			Message: "daily bonus already claimed, cooldown active",
		})
		return
	}

	now := time.Now().UTC()
	a.lastDaily = &now
	a.balance += dailyBonus
	s.record(uid, a, domain.TxDailyBonus, dailyBonus, "", "daily bonus")
	res := domain.ClaimResult{Success: true, Bonus: dailyBonus, Balance: a.balance}
	s.mu.Unlock()

	s.pushBalance(uid, res.Balance, &now)
	c.JSON(http.StatusOK, res)
}

func (s *server) transfer(c *gin.Context) {
	var req struct {
		RequestID string `json:"request_id"`
		ToUserID  string `json:"to_user_id"`
		Amount    int64  `json:"amount"`
		Message   string `json:"message"`
	}
	if err := c.BindJSON(&req); err != nil || req.ToUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if req.Amount < domain.TransferMin || req.Amount > domain.TransferMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount out of range"})
		return
	}

	uid := userID(c)
	s.mu.Lock()
	if req.RequestID != "" && s.seenReqs[req.RequestID] {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate request"})
		return
	}
	from := s.account(uid)
	if from.balance < req.Amount {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
		return
	}
	s.seenReqs[req.RequestID] = true

	fee := req.Amount * domain.TransferFeePct / 100
	net := req.Amount - fee

	to := s.account(req.ToUserID)
	from.balance -= req.Amount
	to.balance += net
	s.record(uid, from, domain.TxTransferSent, -req.Amount, req.ToUserID, req.Message)
	s.record(req.ToUserID, to, domain.TxTransferReceived, net, uid, req.Message)

	res := domain.TransferResult{
		Success:     true,
		TransferID:  uuid.NewString(),
		Fee:         fee,
		NetReceived: net,
		FromBalance: from.balance,
	}
	toBalance := to.balance
	s.mu.Unlock()

	s.pushBalance(uid, res.FromBalance, nil)
	s.pushBalance(req.ToUserID, toBalance, nil)
	c.JSON(http.StatusOK, res)
}

var fund = struct {
	sync.Mutex
	total int64
	goal  int64
}{goal: 10000}

func (s *server) donate(c *gin.Context) {
	var req struct {
		FundID string `json:"fund_id"`
		Amount int64  `json:"amount"`
	}
	if err := c.BindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)
	if a.balance < req.Amount {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
		return
	}
	a.balance -= req.Amount
	s.record(uid, a, domain.TxDonation, -req.Amount, req.FundID, "")
	balance := a.balance
	s.mu.Unlock()

	fund.Lock()
	fund.total += req.Amount
	res := domain.DonationResult{
		Success:     true,
		Donated:     req.Amount,
		FundTotal:   fund.total,
		GoalReached: fund.total >= fund.goal,
		NewBalance:  balance,
	}
	fund.Unlock()

	s.pushBalance(uid, balance, nil)
	c.JSON(http.StatusOK, res)
}

func (s *server) activeFund(c *gin.Context) {
	fund.Lock()
	f := domain.Fund{
		ID:     "fund-dev",
		Title:  "Community Fund",
		Goal:   fund.goal,
		Total:  fund.total,
		Status: "active",
	}
	fund.Unlock()
	c.JSON(http.StatusOK, f)
}

func (s *server) migrate(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)
	if a.migrated {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "already migrated"})
		return
	}
	a.migrated = true
	a.balance += req.Amount
	s.record(uid, a, domain.TxMigration, req.Amount, "", "legacy coin migration")
	res := domain.MigrateResult{Success: true, Migrated: req.Amount, Balance: a.balance}
	s.mu.Unlock()

	s.pushBalance(uid, res.Balance, nil)
	c.JSON(http.StatusOK, res)
}

var itemPrices = map[string]int64{
	"crt_theme":     50,
	"pet_hat":       25,
	"trail_stars":   40,
	"profile_frame": 75,
}

func (s *server) purchase(c *gin.Context) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if err := c.BindJSON(&req); err != nil || req.ItemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	price, ok := itemPrices[req.ItemID]
	if !ok {
		price = 10
	}

	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)
	if a.purchased[req.ItemID] {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "already purchased"})
		return
	}
	if a.balance < price {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
		return
	}
	a.purchased[req.ItemID] = true
	a.balance -= price
	s.record(uid, a, domain.TxPurchase, -price, req.ItemID, "")
	res := domain.PurchaseResult{Success: true, ItemID: req.ItemID, NewBalance: a.balance}
	s.mu.Unlock()

	s.pushBalance(uid, res.NewBalance, nil)
	c.JSON(http.StatusOK, res)
}

func (s *server) equip(c *gin.Context) {
	var req struct {
		ItemID string `json:"item_id"`
		Equip  bool   `json:"equip"`
	}
	if err := c.BindJSON(&req); err != nil || req.ItemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	uid := userID(c)
	s.mu.Lock()
	a := s.account(uid)
	if !a.purchased[req.ItemID] {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": "item not owned"})
		return
	}
	a.equipped[req.ItemID] = req.Equip
	s.mu.Unlock()

	c.JSON(http.StatusOK, domain.EquipResult{Success: true, ItemID: req.ItemID, Equipped: req.Equip})
}

func (s *server) metadataLocked(postID, viewer string) domain.ReactionMetadata {
	rows := s.reactions[postID]

	counts := make(map[domain.ReactionType]int)
	var user *domain.ReactionType
	for uid, t := range rows {
		counts[t]++
		if uid == viewer {
			rt := t
			user = &rt
		}
	}

	m := domain.ReactionMetadata{UserReaction: user}
	for t, n := range counts {
		m.TotalCount += n
		m.TopReactions = append(m.TopReactions, domain.ReactionCount{Type: t, Count: n})
	}
	sort.Slice(m.TopReactions, func(i, j int) bool {
		if m.TopReactions[i].Count != m.TopReactions[j].Count {
			return m.TopReactions[i].Count > m.TopReactions[j].Count
		}
		return m.TopReactions[i].Type < m.TopReactions[j].Type
	})
	if len(m.TopReactions) > 2 {
		m.TopReactions = m.TopReactions[:2]
	}
	return m
}

func (s *server) getReactions(c *gin.Context) {
	postID := c.Param("id")
	s.mu.Lock()
	m := s.metadataLocked(postID, userID(c))
	s.mu.Unlock()
	c.JSON(http.StatusOK, m)
}

func (s *server) toggleReaction(c *gin.Context) {
	var req struct {
		Type domain.ReactionType `json:"reaction_type"`
	}
	if err := c.BindJSON(&req); err != nil || !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	postID := c.Param("id")
	uid := userID(c)

	s.mu.Lock()
	rows, ok := s.reactions[postID]
	if !ok {
		rows = make(map[string]domain.ReactionType)
		s.reactions[postID] = rows
	}
	// Delete when identical, otherwise replace whatever row existed.
	if rows[uid] == req.Type {
		delete(rows, uid)
	} else {
		rows[uid] = req.Type
	}
	s.mu.Unlock()

	s.hub.change("post:"+postID, "post_reactions", gin.H{"post_id": postID})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *server) likeCount(c *gin.Context) {
	s.mu.Lock()
	n := s.likes[c.Param("id")]
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *server) likeUp(c *gin.Context) {
	s.mu.Lock()
	s.likes[c.Param("id")]++
	n := s.likes[c.Param("id")]
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *server) likeDown(c *gin.Context) {
	s.mu.Lock()
	if s.likes[c.Param("id")] > 0 {
		s.likes[c.Param("id")]--
	}
	n := s.likes[c.Param("id")]
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// --- realtime hub ---

type wsFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Table   string `json:"table,omitempty"`
	Event   string `json:"event,omitempty"`
	New     any    `json:"new,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(f wsFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = c.conn.WriteJSON(f)
}

type hub struct {
	mu       sync.Mutex
	channels map[string]map[*wsConn]struct{}
}

func newHub() *hub {
	return &hub{channels: make(map[string]map[*wsConn]struct{})}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h *hub) serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	wc := &wsConn{conn: conn}
	defer h.drop(wc)

	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "subscribe":
			h.mu.Lock()
			set, ok := h.channels[f.Channel]
			if !ok {
				set = make(map[*wsConn]struct{})
				h.channels[f.Channel] = set
			}
			set[wc] = struct{}{}
			h.mu.Unlock()
			wc.send(wsFrame{Type: "ack", ID: f.ID, Channel: f.Channel})
		case "unsubscribe":
			h.mu.Lock()
			delete(h.channels[f.Channel], wc)
			h.mu.Unlock()
		case "broadcast":
			h.fanout(f.Channel, wsFrame{
				Type:    "broadcast",
				Channel: f.Channel,
				Event:   f.Event,
				Payload: f.Payload,
			}, wc)
		case "track":
			// presence announces are accepted and dropped
		}
	}
}

func (h *hub) drop(wc *wsConn) {
	h.mu.Lock()
	for _, set := range h.channels {
		delete(set, wc)
	}
	h.mu.Unlock()
	_ = wc.conn.Close()
}

// fanout delivers to every channel subscriber except the sender.
func (h *hub) fanout(channel string, f wsFrame, exclude *wsConn) {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.channels[channel]))
	for wc := range h.channels[channel] {
		if wc != exclude {
			conns = append(conns, wc)
		}
	}
	h.mu.Unlock()

	for _, wc := range conns {
		wc.send(f)
	}
}

// change pushes a row-change notification to a channel's subscribers.
func (h *hub) change(channel, table string, row any) {
	h.fanout(channel, wsFrame{
		Type:    "change",
		Channel: channel,
		Table:   table,
		Event:   "UPDATE",
		New:     row,
	}, nil)
}
