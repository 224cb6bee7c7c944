package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/strikerzone/checkout/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encode(t *testing.T, event domain.Event) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return data
}

func TestNotificationHandler_Handle(t *testing.T) {
	type sentEmail struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}

	var sent []sentEmail
	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var email sentEmail
		if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
			t.Fatalf("failed to decode email: %v", err)
		}
		sent = append(sent, email)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer emailServer.Close()

	handler := NewNotificationHandler(emailServer.URL, emailServer.Client(), testLogger())

	event := domain.Event{
		Type:      domain.EventPaymentUpdated,
		OrderID:   "ord-1",
		UserID:    "user-1",
		PaymentID: "pay-1",
		Status:    string(domain.PaymentStatusSuccess),
		Amount:    1200,
		Timestamp: time.Now().UTC(),
	}

	if err := handler.Handle(context.Background(), encode(t, event)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].To != "user-1" {
		t.Errorf("unexpected recipient: %s", sent[0].To)
	}
	if sent[0].Subject != "Payment received for order ord-1" {
		t.Errorf("unexpected subject: %s", sent[0].Subject)
	}
}

func TestNotificationHandler_SkipsUntemplatedEvents(t *testing.T) {
	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("email service called for an event without a template")
	}))
	defer emailServer.Close()

	handler := NewNotificationHandler(emailServer.URL, emailServer.Client(), testLogger())

	event := domain.Event{
		Type:    domain.EventOrderUpdated,
		OrderID: "ord-1",
		UserID:  "user-1",
		Status:  string(domain.OrderStatusConfirmed),
	}

	if err := handler.Handle(context.Background(), encode(t, event)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotificationHandler_EmailServiceFailure(t *testing.T) {
	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer emailServer.Close()

	handler := NewNotificationHandler(emailServer.URL, emailServer.Client(), testLogger())

	event := domain.Event{
		Type:    domain.EventPaymentUpdated,
		OrderID: "ord-1",
		UserID:  "user-1",
		Status:  string(domain.PaymentStatusFailed),
	}

	if err := handler.Handle(context.Background(), encode(t, event)); err == nil {
		t.Fatal("expected an error so the message is retried")
	}
}

func TestNotificationHandler_BadPayload(t *testing.T) {
	handler := NewNotificationHandler("http://unused", http.DefaultClient, testLogger())

	if err := handler.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected an error for malformed payload")
	}
}
