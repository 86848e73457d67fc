package store

import (
	"strings"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer("test-secret")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := sealer.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "ya29") {
		t.Fatal("sealed token leaks plaintext")
	}

	plain, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "ya29.access-token" {
		t.Fatalf("round trip changed token: %q", plain)
	}
}

func TestSealerNoncesDiffer(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer("test-secret")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	a, err := sealer.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := sealer.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Fatal("identical ciphertexts for identical plaintexts")
	}
}

func TestSealerRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer("test-secret")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := sealer.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := "A" + sealed[1:]
	if _, err := sealer.Open(tampered); err == nil {
		t.Fatal("expected error for tampered token")
	}
}

func TestSealerRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewSealer("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestSealerWrongKeyFails(t *testing.T) {
	t.Parallel()

	a, err := NewSealer("key-a")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	b, err := NewSealer("key-b")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := a.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected error opening with wrong key")
	}
}
