package mobilemoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOperatorFor(t *testing.T) {
	cases := []struct {
		phone    string
		operator string
		ok       bool
	}{
		{"0321234567", "Orange Money", true},
		{"0331234567", "Airtel Money", true},
		{"0341234567", "MVola", true},
		{"0381234567", "MVola", true},
		{"+261321234567", "Orange Money", true},
		{"261341234567", "MVola", true},
		{"0301234567", "", false},
		{"05", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		operator, ok := OperatorFor(tc.phone)
		if operator != tc.operator || ok != tc.ok {
			t.Errorf("OperatorFor(%q): expected (%q, %t), got (%q, %t)", tc.phone, tc.operator, tc.ok, operator, ok)
		}
	}
}

func TestPayout_GatewayRejectionIsStructuredFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"error":"WALLET_LIMIT_EXCEEDED"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	result, err := client.Payout(context.Background(), "0341234567", 320000, "t1")
	if err != nil {
		t.Fatalf("operator rejection must not be a transport error: %v", err)
	}
	if result.Success {
		t.Error("expected failed result")
	}
	if result.Error != "WALLET_LIMIT_EXCEEDED" {
		t.Errorf("expected operator error code, got %q", result.Error)
	}
	if result.Operator != "MVola" {
		t.Errorf("expected operator resolved from prefix, got %q", result.Operator)
	}
}

func TestPayout_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"transaction_id":"mm_42"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	result, err := client.Payout(context.Background(), "0321234567", 100000, "t2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.TransactionID != "mm_42" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Operator != "Orange Money" {
		t.Errorf("expected Orange Money, got %q", result.Operator)
	}
}

func TestPayout_UnsupportedPrefix(t *testing.T) {
	client := NewClient("http://gateway.invalid", "test-key")
	if _, err := client.Payout(context.Background(), "0301234567", 1000, "t3"); err == nil {
		t.Fatal("expected error for an unsupported prefix")
	}
}
