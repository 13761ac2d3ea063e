package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error)
	Verify(ctx context.Context, txRef string) (VerifyResponse, error)
}

type InitializeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	PhoneNumber   string          `json:"phone_number"`
	TxRef         string          `json:"tx_ref"`
	CallbackURL   string          `json:"callback_url"`
	ReturnURL     string          `json:"return_url"`
	Customization Customization   `json:"customization"`
}

type Customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type InitializeResponse struct {
	Status      string
	Message     string
	CheckoutURL string
	Data        json.RawMessage
}

type VerifyResponse struct {
	Status     string
	DataStatus string
	Reference  string
	Raw        json.RawMessage
}

// Succeeded reports the nested success the gateway uses for a paid charge.
func (v VerifyResponse) Succeeded() bool {
	return v.Status == "success" && v.DataStatus == "success"
}

// Chapa talks to the Chapa REST API.
type Chapa struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

func NewChapa(baseURL, secretKey string, timeout time.Duration) *Chapa {
	return &Chapa{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

type chapaEnvelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Chapa) Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return InitializeResponse{}, apperr.Internal("Failed to initialize payment", err)
	}
	env, _, err := c.do(ctx, http.MethodPost, "/v1/transaction/initialize", body)
	if err != nil {
		return InitializeResponse{}, err
	}

	out := InitializeResponse{Status: env.Status, Message: messageText(env.Message), Data: env.Data}
	if env.Status != "success" {
		return out, apperr.New(apperr.KindPaymentInit, "Payment initialization failed").
			With("message", out.Message)
	}
	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return out, apperr.Wrap(apperr.KindUpstream, "Invalid response from payment gateway", err)
		}
	}
	out.CheckoutURL = data.CheckoutURL
	return out, nil
}

func (c *Chapa) Verify(ctx context.Context, txRef string) (VerifyResponse, error) {
	env, raw, err := c.do(ctx, http.MethodGet, "/v1/transaction/verify/"+txRef, nil)
	if err != nil {
		return VerifyResponse{}, err
	}
	out := VerifyResponse{Status: env.Status, Raw: raw}
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	// data is null for unknown references
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
		out.DataStatus = data.Status
		out.Reference = data.Reference
	}
	return out, nil
}

// do sends the request and decodes the common envelope. Chapa answers 4xx with
// a JSON body for business failures, so the status code is not checked here.
func (c *Chapa) do(ctx context.Context, method, path string, body []byte) (chapaEnvelope, json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return chapaEnvelope{}, nil, apperr.Internal("Failed to build gateway request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return chapaEnvelope{}, nil, apperr.Wrap(apperr.KindUpstream, "Payment gateway request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return chapaEnvelope{}, nil, apperr.Wrap(apperr.KindUpstream, "Payment gateway request failed", err)
	}
	var env chapaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return chapaEnvelope{}, nil, apperr.Wrap(apperr.KindUpstream, "Invalid response from payment gateway",
			fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	return env, raw, nil
}

// messageText flattens Chapa's message, which is a string on most responses
// and an object of field errors on validation failures.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
