package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChapaClient_Initialize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"checkout_url":"https://checkout.example/abc"}}`))
	}))
	defer srv.Close()

	c := NewChapaClient(ChapaConfig{BaseURL: srv.URL + "/", SecretKey: "sk_test"}, zap.NewNop())
	out, err := c.Initialize(context.Background(), CheckoutRequest{
		AmountCents: 45050,
		Currency:    "ETB",
		Email:       " abebe@example.com ",
		FirstName:   "Abebe",
		LastName:    "Kebede Tesfaye",
		TxRef:       "TX-1-10",
		ReturnURL:   "https://hotel.example/return?tx_ref=TX-1-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/abc", out.CheckoutURL)
	assert.Equal(t, "450.50", got["amount"])
	assert.Equal(t, "abebe@example.com", got["email"])
	assert.Equal(t, "Kebede Tesfaye", got["last_name"])
	assert.Equal(t, "TX-1-10", got["tx_ref"])
}

func TestChapaClient_InitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"failed","message":{"email":["The email must be a valid email address."]},"data":null}`))
	}))
	defer srv.Close()

	c := NewChapaClient(ChapaConfig{BaseURL: srv.URL}, nil)
	_, err := c.Initialize(context.Background(), CheckoutRequest{TxRef: "TX-1-10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusBadRequest, rej.StatusCode)
	assert.Contains(t, string(rej.Payload), "valid email")
}

func TestChapaClient_Verify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantAmount int64
	}{
		{"success number amount", 200, `{"status":"success","data":{"amount":450,"currency":"ETB","status":"success"}}`, nil, 45000},
		{"success string amount", 200, `{"status":"success","data":{"amount":"100.25","status":"success"}}`, nil, 10025},
		{"data status pending", 200, `{"status":"success","data":{"amount":450,"status":"pending"}}`, ErrGatewayRejected, 0},
		{"failed", 404, `{"status":"failed","message":"Invalid transaction or Transaction not found","data":null}`, ErrGatewayRejected, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/TX-MULTI-1_2-10", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewChapaClient(ChapaConfig{BaseURL: srv.URL}, zap.NewNop())
			v, err := c.Verify(context.Background(), "TX-MULTI-1_2-10")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, v.AmountCents)
		})
	}
}

func TestChapaClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewChapaClient(ChapaConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())
	_, err := c.Verify(context.Background(), "TX-1-10")
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "450.00", FormatAmount(45000))
	assert.Equal(t, "0.05", FormatAmount(5))
}
