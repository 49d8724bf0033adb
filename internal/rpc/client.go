package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spacedan/internal/domain"
	"spacedan/internal/metrics"

	"github.com/google/uuid"
)

// Client speaks the remote request/response boundary of the platform.
// Every method is one remote operation; mutating operations are never
// retried here (a retry after an ambiguous failure could double-spend).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// do executes one request and decodes the response into out (when non-nil).
// Non-2xx responses are classified into business sentinels or *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	metrics.RPCCalls.WithLabelValues(op).Inc()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		metrics.RPCFailures.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		metrics.RPCFailures.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		if eb.Error == "" {
			eb.Error = strings.TrimSpace(string(data))
		}
		return classify(op, res.StatusCode, eb.Error)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// GetProfile returns the balance view of a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, "get_profile", http.MethodGet, "/api/v1/profile/"+url.PathEscape(userID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// History returns the authenticated user's recent ledger rows, newest
// first. txType narrows to one transaction type when non-empty.
func (c *Client) History(ctx context.Context, txType domain.TransactionType, limit, offset int) ([]domain.Transaction, error) {
	q := url.Values{}
	if txType != "" {
		q.Set("type", string(txType))
	}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))

	var txs []domain.Transaction
	if err := c.do(ctx, "get_history", http.MethodGet, "/api/v1/economy/history?"+q.Encode(), nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

type awardRequest struct {
	Amount      int64                  `json:"amount"`
	Type        domain.TransactionType `json:"type"`
	Reference   string                 `json:"reference,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// AwardCoins invokes the atomic award operation.
func (c *Client) AwardCoins(ctx context.Context, amount int64, txType domain.TransactionType, reference, description string) (*domain.AwardResult, error) {
	var res domain.AwardResult
	req := awardRequest{Amount: amount, Type: txType, Reference: reference, Description: description}
	if err := c.do(ctx, "award_coins", http.MethodPost, "/api/v1/economy/award", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ClaimDailyBonus invokes the atomic daily claim. The 20h cooldown is
// enforced server-side; a rejection surfaces as ErrCooldown, never as a
// transport failure.
func (c *Client) ClaimDailyBonus(ctx context.Context) (*domain.ClaimResult, error) {
	var res domain.ClaimResult
	if err := c.do(ctx, "claim_daily_bonus", http.MethodPost, "/api/v1/economy/daily", struct{}{}, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		if res.Reason == "cooldown" {
			return &res, ErrCooldown
		}
		return &res, classify("claim_daily_bonus", http.StatusOK, res.Message)
	}
	return &res, nil
}

type transferRequest struct {
	RequestID string `json:"request_id"`
	ToUserID  string `json:"to_user_id"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message,omitempty"`
}

// TransferCoins moves coins to another user. The fee and the atomic
// debit/credit are entirely server-side; RequestID lets the server dedupe
// an accidentally resubmitted form.
func (c *Client) TransferCoins(ctx context.Context, toUserID string, amount int64, message string) (*domain.TransferResult, error) {
	req := transferRequest{
		RequestID: uuid.NewString(),
		ToUserID:  toUserID,
		Amount:    amount,
		Message:   message,
	}
	var res domain.TransferResult
	if err := c.do(ctx, "transfer_coins", http.MethodPost, "/api/v1/economy/transfer", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type donateRequest struct {
	RequestID string `json:"request_id"`
	FundID    string `json:"fund_id"`
	Amount    int64  `json:"amount"`
}

// DonateToFund contributes to the active community fund.
func (c *Client) DonateToFund(ctx context.Context, fundID string, amount int64) (*domain.DonationResult, error) {
	req := donateRequest{RequestID: uuid.NewString(), FundID: fundID, Amount: amount}
	var res domain.DonationResult
	if err := c.do(ctx, "donate_to_fund", http.MethodPost, "/api/v1/economy/donate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ActiveFund returns the currently open community fund, or nil when none.
func (c *Client) ActiveFund(ctx context.Context) (*domain.Fund, error) {
	var f domain.Fund
	if err := c.do(ctx, "get_active_fund", http.MethodGet, "/api/v1/economy/fund", nil, &f); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, nil
	}
	return &f, nil
}

type migrateRequest struct {
	Amount int64 `json:"amount"`
}

// MigrateLegacyCoins moves the pre-authentication local balance into the
// ledger. Idempotent server-side: a repeat call is rejected with
// ErrAlreadyMigrated and credits nothing.
func (c *Client) MigrateLegacyCoins(ctx context.Context, amount int64) (*domain.MigrateResult, error) {
	var res domain.MigrateResult
	if err := c.do(ctx, "migrate_legacy_coins", http.MethodPost, "/api/v1/economy/migrate", migrateRequest{Amount: amount}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type purchaseRequest struct {
	ItemID string `json:"item_id"`
}

// PurchaseItem buys a shop item; balance check and dedupe are server-side.
func (c *Client) PurchaseItem(ctx context.Context, itemID string) (*domain.PurchaseResult, error) {
	var res domain.PurchaseResult
	if err := c.do(ctx, "purchase_item", http.MethodPost, "/api/v1/shop/purchase", purchaseRequest{ItemID: itemID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type equipRequest struct {
	ItemID string `json:"item_id"`
	Equip  bool   `json:"equip"`
}

// EquipItem equips or unequips an owned item.
func (c *Client) EquipItem(ctx context.Context, itemID string, equip bool) (*domain.EquipResult, error) {
	var res domain.EquipResult
	if err := c.do(ctx, "equip_item", http.MethodPost, "/api/v1/shop/equip", equipRequest{ItemID: itemID, Equip: equip}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type toggleReactionRequest struct {
	Type domain.ReactionType `json:"reaction_type"`
}

// ToggleReaction toggles the caller's reaction row on a post: delete when
// the identical row exists, otherwise replace whatever row the caller had.
func (c *Client) ToggleReaction(ctx context.Context, postID string, t domain.ReactionType) error {
	return c.do(ctx, "toggle_reaction", http.MethodPost,
		"/api/v1/posts/"+url.PathEscape(postID)+"/reactions/toggle", toggleReactionRequest{Type: t}, nil)
}

// PostReactions refetches the full reaction summary of a post, used after
// a row-change notification instead of incremental patching.
func (c *Client) PostReactions(ctx context.Context, postID string) (*domain.ReactionMetadata, error) {
	var m domain.ReactionMetadata
	if err := c.do(ctx, "get_reactions", http.MethodGet,
		"/api/v1/posts/"+url.PathEscape(postID)+"/reactions", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

type likeCountBody struct {
	Count int `json:"count"`
}

// LikeCount reads the external like counter of a post.
func (c *Client) LikeCount(ctx context.Context, postID string) (int, error) {
	var b likeCountBody
	if err := c.do(ctx, "like_count", http.MethodGet,
		"/api/v1/posts/"+url.PathEscape(postID)+"/likes", nil, &b); err != nil {
		return 0, err
	}
	return b.Count, nil
}

// LikeUp increments the like counter and returns the new count.
func (c *Client) LikeUp(ctx context.Context, postID string) (int, error) {
	var b likeCountBody
	if err := c.do(ctx, "like_up", http.MethodPost,
		"/api/v1/posts/"+url.PathEscape(postID)+"/likes/up", struct{}{}, &b); err != nil {
		return 0, err
	}
	return b.Count, nil
}

// LikeDown decrements the like counter and returns the new count.
func (c *Client) LikeDown(ctx context.Context, postID string) (int, error) {
	var b likeCountBody
	if err := c.do(ctx, "like_down", http.MethodPost,
		"/api/v1/posts/"+url.PathEscape(postID)+"/likes/down", struct{}{}, &b); err != nil {
		return 0, err
	}
	return b.Count, nil
}
