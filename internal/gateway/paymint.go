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

// PayMint is the second redirect wallet. Same flow as FastPay, different
// wire shapes: token-based correlation and a POST lookup endpoint.
type PayMint struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewPayMint(baseURL, secret string, client *http.Client) *PayMint {
	return &PayMint{baseURL: baseURL, secret: secret, client: client}
}

func (p *PayMint) Method() domain.PaymentMethod {
	return domain.MethodPayMint
}

type payMintCreateRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	OrderRef    string `json:"order_ref"`
	CallbackURL string `json:"callback_url"`
}

type payMintPayment struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	State       string `json:"state"`
}

func (p *PayMint) Initiate(ctx context.Context, payment *domain.Payment, returnURL string) (*Initiation, error) {
	body, err := json.Marshal(payMintCreateRequest{
		AmountCents: payment.Amount,
		Currency:    payment.Currency,
		OrderRef:    payment.ID,
		CallbackURL: returnURL,
	})
	if err != nil {
		return nil, err
	}

	payload, status, err := p.do(ctx, "/api/payments", body)
	if err != nil {
		return nil, fmt.Errorf("paymint initiate: %w: %v", domain.ErrGatewayUnavailable, err)
	}
	if status >= 500 {
		return nil, fmt.Errorf("paymint initiate: status %d: %w", status, domain.ErrGatewayUnavailable)
	}
	if status >= 400 {
		return nil, fmt.Errorf("paymint initiate: status %d: %w", status, domain.ErrGatewayRejected)
	}

	var created payMintPayment
	if err := json.Unmarshal(payload, &created); err != nil {
		return nil, fmt.Errorf("paymint initiate: decode response: %w", err)
	}
	if created.Token == "" {
		return nil, fmt.Errorf("paymint initiate: missing token: %w", domain.ErrGatewayRejected)
	}

	return &Initiation{
		ProviderRef: created.Token,
		RedirectURL: created.RedirectURL,
		Payload:     payload,
	}, nil
}

func (p *PayMint) Verify(ctx context.Context, providerRef string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"token": providerRef})
	if err != nil {
		return nil, err
	}

	payload, status, err := p.do(ctx, "/api/payments/lookup", body)
	if err != nil {
		return nil, fmt.Errorf("paymint verify: %w: %v", domain.ErrGatewayUnavailable, err)
	}
	if status == http.StatusNotFound {
		return &Result{Outcome: OutcomeFailed, Payload: payload}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("paymint verify: status %d: %w", status, domain.ErrGatewayUnavailable)
	}

	var looked payMintPayment
	if err := json.Unmarshal(payload, &looked); err != nil {
		return nil, fmt.Errorf("paymint verify: decode response: %w", err)
	}

	result := &Result{Payload: payload}
	switch looked.State {
	case "PAID":
		result.Outcome = OutcomeCompleted
	case "DECLINED", "EXPIRED":
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomePending
	}
	return result, nil
}

type payMintCallback struct {
	Token string `json:"token"`
}

func (p *PayMint) ParseCallback(body []byte) (string, error) {
	var cb payMintCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return "", fmt.Errorf("paymint callback: %w", err)
	}
	if cb.Token == "" {
		return "", fmt.Errorf("paymint callback: missing token")
	}
	return cb.Token, nil
}

func (p *PayMint) do(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secret)

	resp, err := p.client.Do(req)
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
