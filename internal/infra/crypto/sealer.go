// Package crypto seals Monobank tokens at rest.
//
// A master key is kept in a file next to the database. Each user gets a key
// derived from it with PBKDF2-SHA256 (salt = decimal user id), and tokens are
// sealed with XChaCha20-Poly1305. A token sealed for one user cannot be
// opened with another user's id.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	masterKeySize = 32
	kdfIterations = 100_000
)

// ErrOpen is returned for any sealed value that cannot be opened.
var ErrOpen = errors.New("crypto: cannot open sealed token")

// Sealer seals and opens per-user secrets.
type Sealer struct {
	master []byte

	mu   sync.Mutex
	keys map[int64][]byte
}

// NewSealer builds a sealer from an in-memory master key.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) < 16 {
		return nil, fmt.Errorf("crypto: master key too short (%d bytes)", len(master))
	}
	return &Sealer{
		master: append([]byte(nil), master...),
		keys:   make(map[int64][]byte),
	}, nil
}

// LoadOrCreate reads the master key at path, creating it with mode 0600 when
// it does not exist yet.
func LoadOrCreate(path string) (*Sealer, error) {
	master, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		master = make([]byte, masterKeySize)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("crypto: generate master key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("crypto: create key dir: %w", err)
		}
		if err := os.WriteFile(path, master, 0o600); err != nil {
			return nil, fmt.Errorf("crypto: write master key: %w", err)
		}
	default:
		return nil, fmt.Errorf("crypto: read master key: %w", err)
	}
	return NewSealer(master)
}

// Seal encrypts plaintext for userID. The result is base64url text with the
// random nonce in front of the ciphertext.
func (s *Sealer) Seal(userID int64, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.userKey(userID))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same userID. Every failure
// yields ErrOpen.
func (s *Sealer) Open(userID int64, sealed string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrOpen
	}

	aead, err := chacha20poly1305.NewX(s.userKey(userID))
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrOpen
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrOpen
	}
	return string(plain), nil
}

// userKey derives (and memoizes) the key of one user.
func (s *Sealer) userKey(userID int64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[userID]; ok {
		return k
	}
	k := pbkdf2.Key(s.master, []byte(strconv.FormatInt(userID, 10)), kdfIterations, chacha20poly1305.KeySize, sha256.New)
	s.keys[userID] = k
	return k
}
