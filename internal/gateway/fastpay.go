package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/strikerzone/checkout/internal/domain"
)

// FastPay is a redirect-based wallet. Opening a charge returns a hosted
// checkout URL; the wallet later redirects the customer back with the charge
// id, which we re-verify with a GET before trusting anything.
type FastPay struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewFastPay(baseURL, apiKey string, client *http.Client) *FastPay {
	return &FastPay{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (f *FastPay) Method() domain.PaymentMethod {
	return domain.MethodFastPay
}

type fastPayChargeRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	ReturnURL string `json:"return_url"`
}

type fastPayCharge struct {
	ChargeID    string `json:"charge_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

func (f *FastPay) Initiate(ctx context.Context, payment *domain.Payment, returnURL string) (*Initiation, error) {
	body, err := json.Marshal(fastPayChargeRequest{
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Reference: payment.ID,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, err
	}

	payload, status, err := f.do(ctx, http.MethodPost, "/v1/charges", body)
	if err != nil {
		return nil, fmt.Errorf("fastpay initiate: %w: %v", domain.ErrGatewayUnavailable, err)
	}
	if status >= 500 {
		return nil, fmt.Errorf("fastpay initiate: status %d: %w", status, domain.ErrGatewayUnavailable)
	}
	if status >= 400 {
		return nil, fmt.Errorf("fastpay initiate: status %d: %w", status, domain.ErrGatewayRejected)
	}

	var charge fastPayCharge
	if err := json.Unmarshal(payload, &charge); err != nil {
		return nil, fmt.Errorf("fastpay initiate: decode response: %w", err)
	}
	if charge.ChargeID == "" {
		return nil, fmt.Errorf("fastpay initiate: missing charge_id: %w", domain.ErrGatewayRejected)
	}

	return &Initiation{
		ProviderRef: charge.ChargeID,
		RedirectURL: charge.CheckoutURL,
		Payload:     payload,
	}, nil
}

func (f *FastPay) Verify(ctx context.Context, providerRef string) (*Result, error) {
	payload, status, err := f.do(ctx, http.MethodGet, "/v1/charges/"+providerRef, nil)
	if err != nil {
		return nil, fmt.Errorf("fastpay verify: %w: %v", domain.ErrGatewayUnavailable, err)
	}
	if status == http.StatusNotFound {
		return &Result{Outcome: OutcomeFailed, Payload: payload}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("fastpay verify: status %d: %w", status, domain.ErrGatewayUnavailable)
	}

	var charge fastPayCharge
	if err := json.Unmarshal(payload, &charge); err != nil {
		return nil, fmt.Errorf("fastpay verify: decode response: %w", err)
	}

	result := &Result{Payload: payload}
	switch charge.Status {
	case "completed":
		result.Outcome = OutcomeCompleted
	case "failed", "expired":
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomePending
	}
	return result, nil
}

type fastPayCallback struct {
	ChargeID string `json:"charge_id"`
}

func (f *FastPay) ParseCallback(body []byte) (string, error) {
	var cb fastPayCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return "", fmt.Errorf("fastpay callback: %w", err)
	}
	if cb.ChargeID == "" {
		return "", fmt.Errorf("fastpay callback: missing charge_id")
	}
	return cb.ChargeID, nil
}

func (f *FastPay) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return payload, resp.StatusCode, nil
}
