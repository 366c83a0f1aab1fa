// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service and bot
// layers from the Monobank client, the user store and the token sealer.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
)

// StatementFetcher retrieves account statements from Monobank.
type StatementFetcher interface {
	// FetchStatement waits on the per-credential rate gate before dispatching.
	FetchStatement(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error)
	// FetchStatementNow dispatches immediately but still records the dispatch.
	FetchStatementNow(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error)
}

// AccountLister lists accounts and validates tokens.
type AccountLister interface {
	Accounts(ctx context.Context, cred domain.Credential) ([]domain.Account, error)
	ValidateToken(ctx context.Context, cred domain.Credential) (bool, error)
	ForgetAccounts(cred domain.Credential)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// UserStore persists bot users.
type UserStore interface {
	// Get returns (nil, nil) when the user does not exist.
	Get(ctx context.Context, id int64) (*domain.User, error)
	// Add inserts or replaces the user.
	Add(ctx context.Context, u *domain.User) error
	// ListDue returns active users with a token whose report time is hour:minute.
	ListDue(ctx context.Context, hour, minute int) ([]domain.User, error)
	// WithTx runs fn against a transactional view; an error rolls back.
	WithTx(ctx context.Context, fn func(UserStore) error) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Sealer encrypts Monobank tokens at rest, bound to the owning user.
type Sealer interface {
	Seal(userID int64, plaintext string) (string, error)
	Open(userID int64, sealed string) (string, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error
