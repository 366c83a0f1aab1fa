package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminIssuer = "monobot"
	adminScope  = "admin"
	bcryptCost  = 12
)

// AdminClaims are the claims of an ops/admin access token.
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// AdminAuth issues and checks the bearer tokens of the admin HTTP endpoints.
// Tokens are HS256 JWTs; a password login is available when a bcrypt hash is
// configured.
type AdminAuth struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAdminAuth creates the admin authenticator. An empty passwordHash
// disables Login.
func NewAdminAuth(secret, passwordHash string, ttl time.Duration) *AdminAuth {
	return &AdminAuth{
		secret:       []byte(secret),
		passwordHash: []byte(passwordHash),
		ttl:          ttl,
		now:          time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (a *AdminAuth) Enabled() bool {
	return len(a.secret) > 0
}

// IssueToken signs an admin token for subject.
func (a *AdminAuth) IssueToken(subject string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, &domain.ErrValidation{Field: "JWT_SECRET", Message: "not configured"}
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := AdminClaims{
		Scope: adminScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    adminIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken parses and checks an admin token.
func (a *AdminAuth) ValidateToken(tokenString string) (*AdminClaims, error) {
	if !a.Enabled() {
		return nil, &domain.ErrUnauthorized{Message: "admin api disabled"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(adminIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Scope != adminScope {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

// Login checks the admin password and issues a token.
func (a *AdminAuth) Login(password string) (string, time.Time, error) {
	if len(a.passwordHash) == 0 {
		return "", time.Time{}, &domain.ErrUnauthorized{Message: "password login disabled"}
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	return a.IssueToken("admin")
}

// HashPassword produces the bcrypt hash expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", &domain.ErrValidation{Field: "password", Message: "must not be empty"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
