// Package razorpay implements the gateway contract against the Razorpay
// subscriptions API.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gatewaydomain "github.com/communityhq/billingcore/internal/gateway/domain"
)

type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

func New(cfg Config) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}

	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// VerifySignature checks HMAC-SHA256(payment_id|subscription_id, key_secret)
// against the signature the gateway sent with the payment confirmation.
func (c *Client) VerifySignature(subscriptionID, paymentID, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || subscriptionID == "" || paymentID == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.keySecret))
	_, _ = mac.Write([]byte(paymentID + "|" + subscriptionID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func (c *Client) CreateSubscription(ctx context.Context, req gatewaydomain.CreateSubscriptionRequest) (*gatewaydomain.Subscription, error) {
	body := map[string]any{
		"plan_id":     req.PlanID,
		"total_count": req.TotalCount,
	}
	if req.CustomerID != "" {
		body["customer_id"] = req.CustomerID
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out subscriptionPayload
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, atCycleEnd bool) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return gatewaydomain.ErrNotFound
	}
	body := map[string]any{
		"cancel_at_cycle_end": boolToInt(atCycleEnd),
	}
	return c.do(ctx, http.MethodPost, "/subscriptions/"+subscriptionID+"/cancel", body, nil)
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*gatewaydomain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, gatewaydomain.ErrNotFound
	}

	var out paymentPayload
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &gatewaydomain.Payment{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Status:   out.Status,
		Captured: out.Captured,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gatewaydomain.ErrNotFound
	case resp.StatusCode >= 500:
		return gatewaydomain.ErrGatewayUnavailable
	case resp.StatusCode >= 400:
		return gatewaydomain.ErrGatewayRejected
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type subscriptionPayload struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	CustomerID   string `json:"customer_id"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start"`
	CurrentEnd   int64  `json:"current_end"`
	PaidCount    int    `json:"paid_count"`
	TotalCount   int    `json:"total_count"`
}

func (p *subscriptionPayload) toDomain() *gatewaydomain.Subscription {
	sub := &gatewaydomain.Subscription{
		ID:         p.ID,
		PlanID:     p.PlanID,
		CustomerID: p.CustomerID,
		Status:     p.Status,
		PaidCount:  p.PaidCount,
		TotalCount: p.TotalCount,
	}
	if p.CurrentStart > 0 {
		t := time.Unix(p.CurrentStart, 0).UTC()
		sub.CurrentStart = &t
	}
	if p.CurrentEnd > 0 {
		t := time.Unix(p.CurrentEnd, 0).UTC()
		sub.CurrentEnd = &t
	}
	return sub
}

type paymentPayload struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Captured bool   `json:"captured"`
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
