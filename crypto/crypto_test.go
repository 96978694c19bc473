package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{
			name:      "empty key",
			key:       "",
			wantError: true,
			errorMsg:  "encryption key is empty",
		},
		{
			name:      "invalid base64",
			key:       "not-valid-base64!@#$",
			wantError: true,
			errorMsg:  "base64 decode failed",
		},
		{
			name:      "key too short",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 16)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "key too long",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 64)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "valid 32-byte key",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 32)),
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewAESEncryptor() expected error but got nil")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("NewAESEncryptor() unexpected error: %v", err)
				}
				if enc == nil {
					t.Error("NewAESEncryptor() returned nil encryptor")
				}
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	plaintexts := [][]byte{
		[]byte("a"),
		[]byte("1//0gRefreshTokenLookingString-abcDEF123"),
		bytes.Repeat([]byte("x"), 4096),
	}
	for _, pt := range plaintexts {
		ct, err := enc.Encrypt(pt)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if bytes.Contains(ct, pt) {
			t.Error("ciphertext contains plaintext")
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("roundtrip mismatch: got %d bytes, want %d", len(got), len(pt))
		}
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	pt := []byte("same plaintext")
	a, _ := enc.Encrypt(pt)
	b, _ := enc.Encrypt(pt)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext must differ (random nonce)")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	ct, err := enc.Encrypt([]byte("secret token"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := enc.Decrypt(ct); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestDecryptRejectsTruncated(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	if _, err := enc.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
	if _, err := enc.Decrypt(nil); err == nil {
		t.Fatal("expected error for empty ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	encA, _ := NewAESEncryptor(testKey(t))
	encB, _ := NewAESEncryptor(testKey(t))
	ct, err := encA.Encrypt([]byte("cross-key"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := encB.Decrypt(ct); err == nil {
		t.Fatal("expected failure when decrypting with a different key")
	}
}

func TestStringHelpers(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	// Empty strings pass through as empty (no token stored).
	if s, err := EncryptString(enc, ""); err != nil || s != "" {
		t.Errorf("EncryptString(\"\") = %q, %v", s, err)
	}
	if s, err := DecryptString(enc, ""); err != nil || s != "" {
		t.Errorf("DecryptString(\"\") = %q, %v", s, err)
	}

	ct, err := EncryptString(enc, "refresh-token")
	if err != nil {
		t.Fatalf("encrypt string: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ct); err != nil {
		t.Errorf("EncryptString output is not base64: %v", err)
	}
	pt, err := DecryptString(enc, ct)
	if err != nil {
		t.Fatalf("decrypt string: %v", err)
	}
	if pt != "refresh-token" {
		t.Errorf("roundtrip = %q", pt)
	}

	if _, err := DecryptString(enc, "%%%not-base64%%%"); err == nil {
		t.Error("expected error for invalid base64 input")
	}
}
