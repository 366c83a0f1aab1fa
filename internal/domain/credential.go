package domain

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Credential carries a Monobank personal token together with a stable,
// non-secret identifier derived from it. The identifier is what rate limiting,
// caching and logging key on; the token itself only goes into request headers.
type Credential struct {
	Token string
	ID    string
}

// NewCredential derives the identifier from the token.
func NewCredential(token string) Credential {
	sum := blake2b.Sum256([]byte(token))
	return Credential{Token: token, ID: hex.EncodeToString(sum[:8])}
}

// String never prints the token.
func (c Credential) String() string {
	return "credential:" + c.ID
}

// IsZero reports whether no token is set.
func (c Credential) IsZero() bool {
	return c.Token == ""
}
