package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/strikerzone/checkout/internal/domain"
)

func testPayment() *domain.Payment {
	return &domain.Payment{
		ID:       "pay-1",
		Amount:   120000,
		Currency: "bdt",
		Method:   domain.MethodFastPay,
		Status:   domain.PaymentStatusPending,
	}
}

func TestFastPay_Initiate(t *testing.T) {
	t.Run("opens a charge and returns the redirect", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/v1/charges" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("X-Api-Key") != "test-key" {
				t.Errorf("missing api key header")
			}

			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode request: %v", err)
			}
			if req["amount"].(float64) != 120000 {
				t.Errorf("unexpected amount: %v", req["amount"])
			}
			if req["reference"] != "pay-1" {
				t.Errorf("unexpected reference: %v", req["reference"])
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"charge_id":"fp-abc","checkout_url":"https://fastpay.example/pay/fp-abc","status":"pending"}`)
		}))
		defer server.Close()

		adapter := NewFastPay(server.URL, "test-key", server.Client())
		init, err := adapter.Initiate(context.Background(), testPayment(), "https://shop.example/return")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if init.ProviderRef != "fp-abc" {
			t.Errorf("expected provider ref fp-abc, got %s", init.ProviderRef)
		}
		if init.RedirectURL != "https://fastpay.example/pay/fp-abc" {
			t.Errorf("unexpected redirect url: %s", init.RedirectURL)
		}
	})

	t.Run("maps a 4xx to a rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"error":"amount below minimum"}`)
		}))
		defer server.Close()

		adapter := NewFastPay(server.URL, "test-key", server.Client())
		_, err := adapter.Initiate(context.Background(), testPayment(), "https://shop.example/return")
		if !errors.Is(err, domain.ErrGatewayRejected) {
			t.Fatalf("expected ErrGatewayRejected, got %v", err)
		}
	})

	t.Run("maps transport failure to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		adapter := NewFastPay(server.URL, "test-key", &http.Client{Timeout: time.Second})
		_, err := adapter.Initiate(context.Background(), testPayment(), "https://shop.example/return")
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})
}

func TestFastPay_Verify(t *testing.T) {
	outcomes := []struct {
		providerStatus string
		want           Outcome
	}{
		{"completed", OutcomeCompleted},
		{"failed", OutcomeFailed},
		{"expired", OutcomeFailed},
		{"pending", OutcomePending},
		{"processing", OutcomePending},
	}

	for _, tc := range outcomes {
		t.Run(tc.providerStatus, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/charges/fp-abc" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"charge_id":"fp-abc","status":"`+tc.providerStatus+`"}`)
			}))
			defer server.Close()

			adapter := NewFastPay(server.URL, "test-key", server.Client())
			result, err := adapter.Verify(context.Background(), "fp-abc")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Outcome != tc.want {
				t.Errorf("expected outcome %s, got %s", tc.want, result.Outcome)
			}
			if len(result.Payload) == 0 {
				t.Error("expected raw payload to be preserved")
			}
		})
	}

	t.Run("transport failure is unavailable, never failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		adapter := NewFastPay(server.URL, "test-key", &http.Client{Timeout: time.Second})
		_, err := adapter.Verify(context.Background(), "fp-abc")
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})
}

func TestFastPay_ParseCallback(t *testing.T) {
	adapter := NewFastPay("http://unused", "test-key", http.DefaultClient)

	ref, err := adapter.ParseCallback([]byte(`{"charge_id":"fp-abc","status":"completed"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "fp-abc" {
		t.Errorf("expected fp-abc, got %s", ref)
	}

	if _, err := adapter.ParseCallback([]byte(`{"status":"completed"}`)); err == nil {
		t.Error("expected error for missing charge_id")
	}
	if _, err := adapter.ParseCallback([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
