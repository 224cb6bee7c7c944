package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strikerzone/checkout/internal/domain"
)

func TestPayMint_Initiate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer shh" {
			t.Errorf("missing bearer token")
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["amount_cents"].(float64) != 95000 {
			t.Errorf("unexpected amount: %v", req["amount_cents"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":"pm-tok-1","redirect_url":"https://paymint.example/checkout/pm-tok-1"}`)
	}))
	defer server.Close()

	adapter := NewPayMint(server.URL, "shh", server.Client())
	payment := &domain.Payment{ID: "pay-2", Amount: 95000, Currency: "bdt"}

	init, err := adapter.Initiate(context.Background(), payment, "https://shop.example/return")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if init.ProviderRef != "pm-tok-1" {
		t.Errorf("expected pm-tok-1, got %s", init.ProviderRef)
	}
	if init.RedirectURL == "" {
		t.Error("expected redirect url")
	}
}

func TestPayMint_Verify(t *testing.T) {
	outcomes := []struct {
		state string
		want  Outcome
	}{
		{"PAID", OutcomeCompleted},
		{"DECLINED", OutcomeFailed},
		{"EXPIRED", OutcomeFailed},
		{"OPEN", OutcomePending},
	}

	for _, tc := range outcomes {
		t.Run(tc.state, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/payments/lookup" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				var req map[string]string
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("failed to decode lookup request: %v", err)
				}
				if req["token"] != "pm-tok-1" {
					t.Errorf("unexpected token: %s", req["token"])
				}
				_, _ = io.WriteString(w, `{"token":"pm-tok-1","state":"`+tc.state+`"}`)
			}))
			defer server.Close()

			adapter := NewPayMint(server.URL, "shh", server.Client())
			result, err := adapter.Verify(context.Background(), "pm-tok-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Outcome != tc.want {
				t.Errorf("expected %s, got %s", tc.want, result.Outcome)
			}
		})
	}

	t.Run("unknown token is a failed outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"no such payment"}`)
		}))
		defer server.Close()

		adapter := NewPayMint(server.URL, "shh", server.Client())
		result, err := adapter.Verify(context.Background(), "pm-gone")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeFailed {
			t.Errorf("expected failed, got %s", result.Outcome)
		}
	})
}

func TestPayMint_ParseCallback(t *testing.T) {
	adapter := NewPayMint("http://unused", "shh", http.DefaultClient)

	ref, err := adapter.ParseCallback([]byte(`{"token":"pm-tok-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "pm-tok-1" {
		t.Errorf("expected pm-tok-1, got %s", ref)
	}

	if _, err := adapter.ParseCallback([]byte(`{}`)); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestCOD(t *testing.T) {
	adapter := NewCOD()
	payment := &domain.Payment{ID: "pay-3", Amount: 50000, Currency: "bdt"}

	init, err := adapter.Initiate(context.Background(), payment, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if init.RedirectURL != "" {
		t.Error("cod must not redirect anywhere")
	}
	if init.ProviderRef != "cod-pay-3" {
		t.Errorf("unexpected provider ref: %s", init.ProviderRef)
	}

	result, err := adapter.Verify(context.Background(), init.ProviderRef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomePending {
		t.Errorf("cod verify should stay pending until collection, got %s", result.Outcome)
	}

	if _, err := adapter.ParseCallback(nil); err == nil {
		t.Error("cod has no callbacks")
	}
}
