package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/pkg/errors"
)

type Client struct {
	baseURL      string
	publicKey    string
	privateKey   string
	eventsSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a new Wompi REST client
func NewClient(cfg config.WompiConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		publicKey:    cfg.PublicKey,
		privateKey:   cfg.PrivateKey,
		eventsSecret: cfg.EventsSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// PaymentLinkRequest is everything needed to open a hosted checkout for an order
type PaymentLinkRequest struct {
	OrderID       string
	AmountInCents int64
	Currency      string
	CustomerEmail string
	Reference     string
	RedirectURL   string
}

// PaymentLink is the gateway's answer to a payment link creation
type PaymentLink struct {
	URL           string
	TransactionID string
	ExpiresAt     *time.Time
}

type customerData struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type paymentLinkPayload struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	SingleUse       bool         `json:"single_use"`
	CollectShipping bool         `json:"collect_shipping"`
	Currency        string       `json:"currency"`
	AmountInCents   int64        `json:"amount_in_cents"`
	RedirectURL     string       `json:"redirect_url,omitempty"`
	SKU             string       `json:"sku"`
	Reference       string       `json:"reference"`
	CustomerData    customerData `json:"customer_data"`
}

type paymentLinkResponse struct {
	Data struct {
		ID        string     `json:"id"`
		Permalink string     `json:"permalink"`
		ExpiresAt *time.Time `json:"expires_at"`
	} `json:"data"`
}

// Transaction is the gateway view of a single payment attempt
type Transaction struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	Reference         string     `json:"reference"`
	AmountInCents     int64      `json:"amount_in_cents"`
	Currency          string     `json:"currency"`
	PaymentMethodType string     `json:"payment_method_type"`
	StatusMessage     string     `json:"status_message"`
	CreatedAt         time.Time  `json:"created_at"`
	FinalizedAt       *time.Time `json:"finalized_at"`
}

// CreatePaymentLink opens a single-use hosted checkout. Failures are not retried.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	reference := req.Reference
	if reference == "" {
		reference = req.OrderID
	}
	fullName, _, _ := strings.Cut(req.CustomerEmail, "@")

	payload := paymentLinkPayload{
		Name:            fmt.Sprintf("Order #%s", req.OrderID),
		Description:     fmt.Sprintf("Payment for order %s", req.OrderID),
		SingleUse:       true,
		CollectShipping: false,
		Currency:        req.Currency,
		AmountInCents:   req.AmountInCents,
		RedirectURL:     req.RedirectURL,
		SKU:             req.OrderID,
		Reference:       reference,
		CustomerData: customerData{
			Email:    req.CustomerEmail,
			FullName: fullName,
		},
	}

	body, status, err := c.do(ctx, http.MethodPost, "/payment_links", c.publicKey, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		c.logger.Error("Wompi payment link creation failed",
			zap.String("order_id", req.OrderID),
			zap.Int("status", status),
			zap.String("body", string(body)),
		)
		return nil, &errors.ErrGateway{Message: fmt.Sprintf("payment link creation failed with status %d", status)}
	}

	var resp paymentLinkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errors.ErrGateway{Message: "invalid payment link response", Err: err}
	}
	if resp.Data.Permalink == "" {
		return nil, &errors.ErrGateway{Message: "payment link response has no permalink"}
	}

	c.logger.Info("Payment link created",
		zap.String("order_id", req.OrderID),
		zap.String("link_id", resp.Data.ID),
	)

	return &PaymentLink{
		URL:           resp.Data.Permalink,
		TransactionID: resp.Data.ID,
		ExpiresAt:     resp.Data.ExpiresAt,
	}, nil
}

// GetTransaction fetches the current state of a transaction
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/transactions/"+transactionID, c.privateKey, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &errors.ErrGateway{Message: fmt.Sprintf("transaction lookup failed with status %d", status)}
	}

	var resp struct {
		Data Transaction `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errors.ErrGateway{Message: "invalid transaction response", Err: err}
	}
	return &resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path, key string, payload interface{}) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &errors.ErrGateway{Message: "payment gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &errors.ErrGateway{Message: "failed to read gateway response", Err: err}
	}
	return body, resp.StatusCode, nil
}
