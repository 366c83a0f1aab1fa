package crypto_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/boddenberg/monoreport-bot-go/internal/infra/crypto"
)

const token = "uTestToken123456789012345678901234567890"

func newSealer(t *testing.T) (*crypto.Sealer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", ".secret_key")
	s, err := crypto.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("expected sealer, got %v", err)
	}
	return s, path
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s, _ := newSealer(t)

	sealed, err := s.Seal(123456789, token)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == token {
		t.Fatal("sealed value must differ from the plaintext")
	}

	got, err := s.Open(123456789, sealed)
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}
	if got != token {
		t.Errorf("expected %q, got %q", token, got)
	}
}

func TestSeal_DifferentUsersDiffer(t *testing.T) {
	s, _ := newSealer(t)

	a, _ := s.Seal(111111111, token)
	b, _ := s.Seal(222222222, token)
	if a == b {
		t.Error("expected different ciphertexts for different users")
	}
}

func TestOpen_WrongUserFails(t *testing.T) {
	s, _ := newSealer(t)

	sealed, _ := s.Seal(123456789, token)
	if _, err := s.Open(987654321, sealed); !errors.Is(err, crypto.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	s, _ := newSealer(t)

	for _, in := range []string{"", "invalid_encrypted_data", "!!!not base64!!!", "AAAA"} {
		if _, err := s.Open(1, in); !errors.Is(err, crypto.ErrOpen) {
			t.Errorf("Open(%q): expected ErrOpen, got %v", in, err)
		}
	}
}

func TestLoadOrCreate_PersistsKey(t *testing.T) {
	s1, path := newSealer(t)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected key file mode 0600, got %o", info.Mode().Perm())
	}
	key1, _ := os.ReadFile(path)

	sealed, _ := s1.Seal(42, token)

	s2, err := crypto.LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	key2, _ := os.ReadFile(path)
	if !bytes.Equal(key1, key2) {
		t.Fatal("master key must not be regenerated")
	}

	got, err := s2.Open(42, sealed)
	if err != nil || got != token {
		t.Errorf("expected a reloaded sealer to open old tokens, got %q, %v", got, err)
	}
}

func TestNewSealer_ShortKey(t *testing.T) {
	if _, err := crypto.NewSealer([]byte("short")); err == nil {
		t.Error("expected an error for a short master key")
	}
}
