package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetPayment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/payments/pay-1" {
			t.Fatalf("path = %s, want /api/payments/pay-1", r.URL.Path)
		}

		resp := Payment{
			Payment: "pay-1",
			Status:  StatusConfirmed,
			Amount:  120,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetPayment(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetPayment error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.Payment != "pay-1" || res.Status != StatusConfirmed || res.Amount != 120 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetPayment_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, code, _, err := client.GetPayment(context.Background(), "pay-unknown")
	if err != nil {
		t.Fatalf("GetPayment error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil payment, got %+v", res)
	}
	if code != http.StatusNoContent {
		t.Fatalf("status code = %d, want %d", code, http.StatusNoContent)
	}
}

func TestGetPayment_NotConfigured(t *testing.T) {
	var client *Client

	_, _, _, err := client.GetPayment(context.Background(), "pay-1")
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

func TestGetPayment_RetriesServerErrors(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Payment{Payment: "pay-1", Status: StatusPending})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, code, _, err := client.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("GetPayment error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if res == nil || res.Status != StatusPending {
		t.Fatalf("unexpected response: %+v", res)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}
