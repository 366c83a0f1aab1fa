package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("sqlite")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserStore implements port.UserStore on SQLite.
type UserStore struct {
	db *sql.DB
	q  querier
}

// NewUserStore wraps an open, migrated database.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db, q: db}
}

const userColumns = `id, first_name, last_name, username, language_code, monobank_token,
	selected_accounts, report_hour, report_minute, join_date, block_date`

// Get returns (nil, nil) when the user is unknown.
func (s *UserStore) Get(ctx context.Context, id int64) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "UserStore.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// Add inserts the user or replaces every stored field.
func (s *UserStore) Add(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "UserStore.Add")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", u.ID))

	accounts, err := json.Marshal(nonNil(u.SelectedAccounts))
	if err != nil {
		return err
	}
	joined := u.JoinDate
	if joined.IsZero() {
		joined = time.Now()
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name        = excluded.first_name,
			last_name         = excluded.last_name,
			username          = excluded.username,
			language_code     = excluded.language_code,
			monobank_token    = excluded.monobank_token,
			selected_accounts = excluded.selected_accounts,
			report_hour       = excluded.report_hour,
			report_minute     = excluded.report_minute,
			block_date        = excluded.block_date`,
		u.ID, u.FirstName, u.LastName, u.Username, u.LanguageCode, u.SealedToken,
		string(accounts), u.ReportHour, u.ReportMinute, joined.Unix(), unixOrNil(u.BlockDate),
	)
	if err != nil {
		return fmt.Errorf("save user %d: %w", u.ID, err)
	}
	return nil
}

// ListDue returns active users with a token whose report time is hour:minute.
func (s *UserStore) ListDue(ctx context.Context, hour, minute int) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "UserStore.ListDue")
	defer span.End()

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE block_date IS NULL
		  AND monobank_token != ''
		  AND report_hour = ? AND report_minute = ?
		ORDER BY id`, hour, minute)
	if err != nil {
		return nil, fmt.Errorf("list due users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	span.SetAttributes(attribute.Int("users", len(users)))
	return users, rows.Err()
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer one.
func (s *UserStore) WithTx(ctx context.Context, fn func(port.UserStore) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&UserStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Ping checks the database connection.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*domain.User, error) {
	var (
		u        domain.User
		accounts string
		joined   int64
		blocked  sql.NullInt64
	)
	if err := sc.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.LanguageCode, &u.SealedToken,
		&accounts, &u.ReportHour, &u.ReportMinute, &joined, &blocked); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(accounts), &u.SelectedAccounts); err != nil {
		return nil, fmt.Errorf("decode selected accounts of %d: %w", u.ID, err)
	}
	u.JoinDate = time.Unix(joined, 0).UTC()
	if blocked.Valid {
		t := time.Unix(blocked.Int64, 0).UTC()
		u.BlockDate = &t
	}
	return &u, nil
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
