package cryptopay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tgshopbot/internal/config"
)

func testClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(config.Config{
		CryptoPayToken:   token,
		CryptoPayBaseURL: baseURL,
		USDTRate:         80,
	}, log)
}

func TestAmountUSDT(t *testing.T) {
	client := testClient(t, "", "")

	tests := []struct {
		rub  int
		want float64
	}{
		{rub: 80, want: 1},
		{rub: 100, want: 1.25},
		{rub: 1, want: 0.0125},
		{rub: 0, want: 0.000001},
		{rub: 799, want: 9.9875},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, client.AmountUSDT(tt.rub), 1e-9, "rub=%d", tt.rub)
	}
}

func TestCreateInvoice_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/createInvoice", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Crypto-Pay-API-Token"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"asset":"USDT"`)
		fmt.Fprint(w, `{"ok":true,"result":{"invoice_id":12345,"pay_url":"https://t.me/CryptoBot?start=IV12345"}}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, "secret-token")
	invoice, err := client.CreateInvoice(context.Background(), 400, "Order 1")
	require.NoError(t, err)
	assert.Equal(t, "12345", invoice.ID)
	assert.Equal(t, "https://t.me/CryptoBot?start=IV12345", invoice.PayURL)
	assert.False(t, invoice.Mock)
}

func TestCreateInvoice_FallsBackToMock(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "not json")
			},
		},
		{
			name: "provider rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"ok":false}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := testClient(t, srv.URL, "secret-token")
			invoice, err := client.CreateInvoice(context.Background(), 400, "Order 1")
			require.NoError(t, err)
			assert.True(t, invoice.Mock)
			assert.True(t, strings.HasPrefix(invoice.ID, "mock-"))
			assert.True(t, strings.HasPrefix(invoice.PayURL, "https://pay.invalid/"))
		})
	}
}

func TestCreateInvoice_NoTokenIsMock(t *testing.T) {
	client := testClient(t, "", "")
	invoice, err := client.CreateInvoice(context.Background(), 400, "Order 1")
	require.NoError(t, err)
	assert.True(t, invoice.Mock)
}

func TestCheckStatus_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		want   Status
	}{
		{name: "paid", remote: "paid", want: StatusPaid},
		{name: "active maps to pending", remote: "active", want: StatusPending},
		{name: "pending passes through", remote: "pending", want: StatusPending},
		{name: "expired maps to not found", remote: "expired", want: StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/getInvoices", r.URL.Path)
				assert.Equal(t, "12345", r.URL.Query().Get("invoice_ids"))
				fmt.Fprintf(w, `{"ok":true,"result":{"items":[{"invoice_id":12345,"status":%q}]}}`, tt.remote)
			}))
			defer srv.Close()

			client := testClient(t, srv.URL, "secret-token")
			assert.Equal(t, tt.want, client.CheckStatus(context.Background(), "12345"))
		})
	}
}

func TestCheckStatus_NeverPaysMockOrUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("mock invoice must not be checked remotely")
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, "secret-token")
	assert.Equal(t, StatusNotFound, client.CheckStatus(context.Background(), "mock-abc"))
	assert.Equal(t, StatusNotFound, client.CheckStatus(context.Background(), ""))

	noToken := testClient(t, srv.URL, "")
	assert.Equal(t, StatusNotFound, noToken.CheckStatus(context.Background(), "12345"))
}

func TestCheckStatus_RemoteErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, "secret-token")
	assert.Equal(t, StatusNotFound, client.CheckStatus(context.Background(), "12345"))
}
