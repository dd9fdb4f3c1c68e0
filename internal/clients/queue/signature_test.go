package queue

import (
	"testing"
)

func TestVerifyAcceptsCurrentKey(t *testing.T) {
	t.Parallel()

	r, err := NewReceiver("current-key", "next-key")
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	body := []byte(`{"userId":"u1"}`)
	if err := r.Verify(body, Sign("current-key", body)); err != nil {
		t.Fatalf("Verify with current key: %v", err)
	}
}

func TestVerifyAcceptsNextKeyDuringRollover(t *testing.T) {
	t.Parallel()

	r, err := NewReceiver("current-key", "next-key")
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	body := []byte(`{"userId":"u1"}`)
	if err := r.Verify(body, Sign("next-key", body)); err != nil {
		t.Fatalf("Verify with next key: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	r, err := NewReceiver("current-key", "")
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	body := []byte(`{"userId":"u1"}`)
	sig := Sign("current-key", body)
	tampered := []byte(`{"userId":"u2"}`)
	if err := r.Verify(tampered, sig); err == nil {
		t.Fatalf("Verify: tampered body accepted")
	}
}

func TestVerifyRejectsWrongKeyAndMissingSignature(t *testing.T) {
	t.Parallel()

	r, err := NewReceiver("current-key", "next-key")
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	body := []byte(`{"userId":"u1"}`)
	if err := r.Verify(body, Sign("some-other-key", body)); err == nil {
		t.Fatalf("Verify: wrong key accepted")
	}
	if err := r.Verify(body, ""); err == nil {
		t.Fatalf("Verify: empty signature accepted")
	}
}

func TestNewReceiverRequiresCurrentKey(t *testing.T) {
	t.Parallel()

	if _, err := NewReceiver("", "next-key"); err == nil {
		t.Fatalf("NewReceiver: empty current key accepted")
	}
	// The next key is optional outside rollover windows.
	if _, err := NewReceiver("current-key", ""); err != nil {
		t.Fatalf("NewReceiver without next key: %v", err)
	}
}
