package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TransferStatus }{
		{TransferStatusPending, TransferStatusProcessing},
		{TransferStatusPending, TransferStatusCompleted},
		{TransferStatusPending, TransferStatusFailed},
		{TransferStatusPending, TransferStatusCancelled},
		{TransferStatusProcessing, TransferStatusCompleted},
		{TransferStatusProcessing, TransferStatusFailed},
		{TransferStatusProcessing, TransferStatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to TransferStatus }{
		{TransferStatusCompleted, TransferStatusPending},
		{TransferStatusCompleted, TransferStatusFailed},
		{TransferStatusFailed, TransferStatusCompleted},
		{TransferStatusCancelled, TransferStatusPending},
		{TransferStatusProcessing, TransferStatusPending},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []TransferStatus{TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled} {
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []TransferStatus{TransferStatusPending, TransferStatusProcessing} {
		if status.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}
