package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/volapay/remit-service/internal/domain"
)

func TestMaskSensitive_TopLevelKeys(t *testing.T) {
	got := MaskSensitive(map[string]any{
		"password":   "hunter22",
		"api_token":  "tok_live_abc",
		"cardNumber": "4242424242424242",
		"amount":     10000,
	})

	if got["password"] != "********" {
		t.Errorf("expected same-length asterisks for password, got %v", got["password"])
	}
	if got["api_token"] != "************" {
		t.Errorf("expected api_token masked, got %v", got["api_token"])
	}
	// "cardNumber" carries no sensitive fragment; it passes through.
	if got["cardNumber"] != "4242424242424242" {
		t.Errorf("expected cardNumber untouched, got %v", got["cardNumber"])
	}
	if got["amount"] != 10000 {
		t.Errorf("expected amount untouched, got %v", got["amount"])
	}
}

func TestMaskSensitive_NonStringSensitiveValue(t *testing.T) {
	got := MaskSensitive(map[string]any{"secret_count": 42})
	if got["secret_count"] != "***MASKED***" {
		t.Errorf("expected placeholder for non-string sensitive value, got %v", got["secret_count"])
	}
}

func TestMaskSensitive_NestedStructures(t *testing.T) {
	got := MaskSensitive(map[string]any{
		"payment": map[string]any{
			"stripe_key": "sk_live_123",
			"currency":   "cad",
		},
		"attempts": []any{
			map[string]any{"password": "abc"},
		},
	})

	payment := got["payment"].(map[string]any)
	if payment["stripe_key"] != "***********" {
		t.Errorf("expected nested key masked, got %v", payment["stripe_key"])
	}
	if payment["currency"] != "cad" {
		t.Errorf("expected nested non-sensitive value untouched, got %v", payment["currency"])
	}
	attempt := got["attempts"].([]any)[0].(map[string]any)
	if attempt["password"] != "***" {
		t.Errorf("expected masked password inside slice, got %v", attempt["password"])
	}
}

func TestMaskSensitive_Nil(t *testing.T) {
	if got := MaskSensitive(nil); got != nil {
		t.Errorf("expected nil in, nil out; got %v", got)
	}
}

func TestMaskTail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hery Rakoto", "He*********"},
		{"10000", "10***"},
		{"ab", "ab"},
		{"a", "a"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskTail(tc.in); got != tc.want {
			t.Errorf("MaskTail(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestAuditLog_MasksBeforePersisting(t *testing.T) {
	repo := newStubRepo()
	logger := NewAuditLogger(repo)

	logger.Log(context.Background(), domain.AuditEntry{
		Action:     domain.AuditTransferCreate,
		Resource:   "transfer",
		ResourceID: "t1",
		NewValues:  map[string]any{"password": "abcd", "status": "PENDING"},
	})

	if len(repo.auditEntries) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(repo.auditEntries))
	}
	want := map[string]any{"password": "****", "status": "PENDING"}
	if !reflect.DeepEqual(repo.auditEntries[0].NewValues, want) {
		t.Errorf("expected masked values %v, got %v", want, repo.auditEntries[0].NewValues)
	}
	if repo.auditEntries[0].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected an id to be assigned")
	}
}

func TestAuditLog_SwallowsPersistFailure(t *testing.T) {
	repo := newStubRepo()
	repo.auditErr = errors.New("db down")
	logger := NewAuditLogger(repo)

	// Must not panic: the audit channel never breaks the primary operation.
	logger.Log(context.Background(), domain.AuditEntry{Action: domain.AuditTransferCreate})
}
