package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"golang.org/x/crypto/bcrypt"
)

func TestAdminAuth_IssueAndValidate(t *testing.T) {
	auth := service.NewAdminAuth("s3cret", "", time.Hour)

	token, expires, err := auth.IssueToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("unexpected expiry %s", expires)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected a valid token, got %v", err)
	}
	if claims.Subject != "ops" || claims.Scope != "admin" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestAdminAuth_RejectsBadTokens(t *testing.T) {
	auth := service.NewAdminAuth("s3cret", "", time.Hour)
	other, _, _ := service.NewAdminAuth("other", "", time.Hour).IssueToken("ops")
	expired, _, _ := service.NewAdminAuth("s3cret", "", -time.Minute).IssueToken("ops")

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"other secret": other,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			var unauthorized *domain.ErrUnauthorized
			if _, err := auth.ValidateToken(token); !errors.As(err, &unauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAdminAuth_DisabledWithoutSecret(t *testing.T) {
	auth := service.NewAdminAuth("", "", time.Hour)
	if auth.Enabled() {
		t.Error("expected the admin api to be disabled")
	}
	if _, _, err := auth.IssueToken("ops"); err == nil {
		t.Error("expected an error without a secret")
	}
}

func TestAdminAuth_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	auth := service.NewAdminAuth("s3cret", string(hash), time.Hour)

	token, _, err := auth.Login("hunter2")
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if _, err := auth.ValidateToken(token); err != nil {
		t.Errorf("issued token must validate, got %v", err)
	}

	var unauthorized *domain.ErrUnauthorized
	if _, _, err := auth.Login("wrong"); !errors.As(err, &unauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := service.NewAdminAuth("s3cret", "", time.Hour).Login("hunter2"); !errors.As(err, &unauthorized) {
		t.Errorf("expected password login to be disabled, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := service.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")) != nil {
		t.Error("hash must match the password")
	}

	var validation *domain.ErrValidation
	if _, err := service.HashPassword(""); !errors.As(err, &validation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
