// Package payment gates paid deal submissions behind a Razorpay-compatible
// order/verify flow.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pauljones0/dealboard/internal/cache"
	"github.com/pauljones0/dealboard/internal/config"
	"github.com/pauljones0/dealboard/internal/util"
)

// Claims never expire so a payment funds at most one submission.
const claimKeyPrefix = "payment:"

var (
	ErrDisabled         = errors.New("payments are not configured")
	ErrInvalidSignature = errors.New("payment signature mismatch")
	ErrAlreadyClaimed   = errors.New("payment already used")
	ErrMissingProof     = errors.New("orderId, paymentId and signature are required")
)

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Proof is what the checkout widget hands back after a successful payment.
type Proof struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

type Gateway struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
	currency   string
	amount     int64
	keys       cache.KeyStore
	retries    int
}

func NewGateway(cfg *config.Config, keys cache.KeyStore) *Gateway {
	return &Gateway{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.PaymentAPIURL,
		keyID:      cfg.PaymentKeyID,
		keySecret:  cfg.PaymentKeySecret,
		currency:   cfg.PaymentCurrency,
		amount:     cfg.SubmissionFee,
		keys:       keys,
		retries:    2,
	}
}

func (g *Gateway) Enabled() bool {
	return g != nil && g.keyID != "" && g.keySecret != ""
}

// KeyID is the public key the checkout widget needs.
func (g *Gateway) KeyID() string {
	return g.keyID
}

// CreateOrder opens an order for one submission fee.
func (g *Gateway) CreateOrder(ctx context.Context, receipt string) (Order, error) {
	if !g.Enabled() {
		return Order{}, ErrDisabled
	}
	payload, err := json.Marshal(map[string]any{
		"amount":   g.amount,
		"currency": g.currency,
		"receipt":  receipt,
	})
	if err != nil {
		return Order{}, err
	}

	var order Order
	err = util.RetryWithBackoffFrom(ctx, g.retries, 500*time.Millisecond, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(payload))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(g.keyID, g.keySecret)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode >= 500 {
			return fmt.Errorf("payment gateway status %s", resp.Status)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return util.Permanent(fmt.Errorf("payment gateway status %s: %s", resp.Status, string(body)))
		}
		if err := json.Unmarshal(body, &order); err != nil {
			return util.Permanent(fmt.Errorf("failed to decode order: %w", err))
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// Signature computes the checkout signature for an order/payment pair.
func Signature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the proof signature without consuming it.
func (g *Gateway) Verify(p Proof) error {
	if !g.Enabled() {
		return ErrDisabled
	}
	if p.OrderID == "" || p.PaymentID == "" || p.Signature == "" {
		return ErrMissingProof
	}
	want := Signature(g.keySecret, p.OrderID, p.PaymentID)
	if !hmac.Equal([]byte(want), []byte(p.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Claim verifies the proof and marks the payment used by userID. A payment
// can be claimed once.
func (g *Gateway) Claim(ctx context.Context, p Proof, userID string) error {
	if err := g.Verify(p); err != nil {
		return err
	}
	ok, err := g.keys.SetNX(ctx, claimKeyPrefix+p.PaymentID, userID, 0)
	if err != nil {
		return fmt.Errorf("failed to record payment %s: %w", p.PaymentID, err)
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

// Release undoes a Claim when the submission it paid for could not be stored.
func (g *Gateway) Release(ctx context.Context, p Proof) error {
	return g.keys.Del(ctx, claimKeyPrefix+p.PaymentID)
}
