package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

func TestChapa_Initialize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"message":"Hosted Link","status":"success","data":{"checkout_url":"https://checkout.chapa.co/x"}}`))
	}))
	defer srv.Close()

	c := NewChapa(srv.URL+"/", "sk_test", time.Second)
	resp, err := c.Initialize(context.Background(), InitializeRequest{
		Amount:   decimal.RequireFromString("100.50"),
		Currency: "ETB",
		TxRef:    "chapa-1-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/x", resp.CheckoutURL)
	assert.Equal(t, "Hosted Link", resp.Message)
	assert.Equal(t, "chapa-1-2", got["tx_ref"])
	assert.Equal(t, "100.5", got["amount"])
}

func TestChapa_InitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":{"email":["The email must be a valid email address."]},"status":"failed","data":null}`))
	}))
	defer srv.Close()

	_, err := NewChapa(srv.URL, "sk", time.Second).Initialize(context.Background(), InitializeRequest{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindPaymentInit, e.Kind)
	assert.Contains(t, e.Details["message"], "valid email")
}

func TestChapa_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := NewChapa(srv.URL, "sk", time.Second).Verify(context.Background(), "chapa-1-2")
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestChapa_Verify(t *testing.T) {
	payload := `{"message":"Payment details","status":"success","data":{"status":"success","reference":"AP123","tx_ref":"chapa-1-2"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transaction/verify/chapa-1-2", r.URL.Path)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	resp, err := NewChapa(srv.URL, "sk", time.Second).Verify(context.Background(), "chapa-1-2")
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, "AP123", resp.Reference)
	assert.JSONEq(t, payload, string(resp.Raw))
}

func TestChapa_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewChapa(url, "sk", time.Second).Verify(context.Background(), "chapa-1-2")
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}
