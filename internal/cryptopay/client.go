package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/tgshopbot/internal/config"
)

const (
	mainnetBaseURL = "https://pay.crypt.bot"
	testnetBaseURL = "https://testnet-pay.crypt.bot"

	// mockPrefix marks locally synthesized invoices so they can never be
	// mistaken for provider-issued ones.
	mockPrefix = "mock-"
)

type Status string

const (
	StatusPaid     Status = "paid"
	StatusPending  Status = "pending"
	StatusNotFound Status = "not_found"
)

// Invoice is a payment request the buyer can act on. Mock invoices are
// generated locally when the provider is unavailable; they carry a synthetic
// pay URL and never reach paid status.
type Invoice struct {
	ID     string
	PayURL string
	Mock   bool
}

type Client struct {
	token      string
	baseURL    string
	rate       float64
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.CryptoPayBaseURL, "/")
	if baseURL == "" {
		if cfg.CryptoPayTestnet {
			baseURL = testnetBaseURL
		} else {
			baseURL = mainnetBaseURL
		}
	}

	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rate := cfg.USDTRate
	if rate <= 0 {
		rate = 80
	}

	return &Client{
		token:   cfg.CryptoPayToken,
		baseURL: baseURL,
		rate:    rate,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// AmountUSDT converts a ruble amount to the settlement asset, rounded to six
// decimal places and floored so the provider never sees a zero-amount invoice.
func (c *Client) AmountUSDT(amountRUB int) float64 {
	usdt := float64(amountRUB) / c.rate
	rounded := float64(int64(usdt*1e6+0.5)) / 1e6
	if rounded < 0.000001 {
		rounded = 0.000001
	}
	return rounded
}

// CreateInvoice asks the provider for an invoice and falls back to a mock one
// on any failure, so the caller always gets something the buyer can act on.
func (c *Client) CreateInvoice(ctx context.Context, amountRUB int, description string) (*Invoice, error) {
	if c.token == "" {
		return c.mockInvoice(), nil
	}

	invoice, err := c.createRemoteInvoice(ctx, amountRUB, description)
	if err != nil {
		c.log.Warn("cryptopay invoice failed, using mock", "err", err)
		return c.mockInvoice(), nil
	}
	return invoice, nil
}

// CheckStatus queries the remote invoice state. Any error degrades to a
// conservative not-found; mock invoices are never checked remotely.
func (c *Client) CheckStatus(ctx context.Context, invoiceID string) Status {
	if invoiceID == "" || strings.HasPrefix(invoiceID, mockPrefix) {
		return StatusNotFound
	}
	if c.token == "" {
		return StatusNotFound
	}

	status, err := c.fetchRemoteStatus(ctx, invoiceID)
	if err != nil {
		c.log.Warn("cryptopay status check failed", "invoice_id", invoiceID, "err", err)
		return StatusNotFound
	}
	return status
}

func (c *Client) mockInvoice() *Invoice {
	id := mockPrefix + uuid.NewString()
	return &Invoice{
		ID:     id,
		PayURL: "https://pay.invalid/" + id,
		Mock:   true,
	}
}

func (c *Client) createRemoteInvoice(ctx context.Context, amountRUB int, description string) (*Invoice, error) {
	payload := map[string]any{
		"asset":         "USDT",
		"currency_type": "crypto",
		"amount":        strconv.FormatFloat(c.AmountUSDT(amountRUB), 'f', 6, 64),
		"description":   description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post invoice: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cryptopay error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed struct {
		OK     bool `json:"ok"`
		Result struct {
			InvoiceID int64  `json:"invoice_id"`
			PayURL    string `json:"pay_url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if !parsed.OK || parsed.Result.InvoiceID == 0 || parsed.Result.PayURL == "" {
		return nil, fmt.Errorf("invalid invoice response: %s", truncateBody(rawBody))
	}

	return &Invoice{
		ID:     strconv.FormatInt(parsed.Result.InvoiceID, 10),
		PayURL: parsed.Result.PayURL,
	}, nil
}

func (c *Client) fetchRemoteStatus(ctx context.Context, invoiceID string) (Status, error) {
	endpoint, err := url.Parse(c.baseURL + "/api/getInvoices")
	if err != nil {
		return StatusNotFound, fmt.Errorf("parse endpoint: %w", err)
	}
	params := url.Values{}
	params.Set("invoice_ids", invoiceID)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return StatusNotFound, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusNotFound, fmt.Errorf("get invoices: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusNotFound, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return StatusNotFound, fmt.Errorf("cryptopay error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed struct {
		OK     bool `json:"ok"`
		Result struct {
			Items []struct {
				InvoiceID int64  `json:"invoice_id"`
				Status    string `json:"status"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return StatusNotFound, fmt.Errorf("decode invoices response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if !parsed.OK || len(parsed.Result.Items) == 0 {
		return StatusNotFound, nil
	}

	switch parsed.Result.Items[0].Status {
	case "paid":
		return StatusPaid, nil
	case "active", "pending":
		return StatusPending, nil
	default:
		return StatusNotFound, nil
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
