package crypto

import (
	"errors"
	"strings"
	"testing"
)

func newTestEncryptor(t *testing.T) Encryptor {
	t.Helper()
	enc, err := NewEncryptor(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("failed to build encryptor: %v", err)
	}
	return enc
}

func TestNewEncryptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "missing key", key: "", wantErr: ErrMissingKey},
		{name: "short key", key: "short", wantErr: ErrInvalidKey},
		{name: "long key", key: strings.Repeat("k", 33), wantErr: ErrInvalidKey},
		{name: "valid key", key: strings.Repeat("k", 32)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			enc, err := NewEncryptor(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && enc == nil {
				t.Fatal("expected encryptor instance")
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	t.Parallel()

	enc := newTestEncryptor(t)

	first, err := enc.Seal(PurposeRefundEmail, "buyer@example.com")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	second, err := enc.Seal(PurposeRefundEmail, "buyer@example.com")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh nonce per seal")
	}
	if !strings.HasPrefix(first, sealedPrefix) || strings.Contains(first, "buyer") {
		t.Fatalf("unexpected sealed value %q", first)
	}

	opened, err := enc.Open(PurposeRefundEmail, first)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if opened != "buyer@example.com" {
		t.Fatalf("expected original plaintext, got %q", opened)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	enc := newTestEncryptor(t)
	sealed, err := enc.Seal(PurposeRefundEmail, "buyer@example.com")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	other, err := NewEncryptor(strings.Repeat("z", 32))
	if err != nil {
		t.Fatalf("failed to build encryptor: %v", err)
	}

	tests := []struct {
		name    string
		enc     Encryptor
		purpose string
		value   string
		wantErr error
	}{
		{name: "wrong purpose", enc: enc, purpose: "address.street", value: sealed},
		{name: "wrong key", enc: other, purpose: PurposeRefundEmail, value: sealed},
		{name: "missing prefix", enc: enc, purpose: PurposeRefundEmail, value: "buyer@example.com", wantErr: ErrUnknownFormat},
		{name: "bad encoding", enc: enc, purpose: PurposeRefundEmail, value: sealedPrefix + "%%%"},
		{name: "too short", enc: enc, purpose: PurposeRefundEmail, value: sealedPrefix + "YWJj", wantErr: ErrCiphertextTooShort},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.enc.Open(tt.purpose, tt.value)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
