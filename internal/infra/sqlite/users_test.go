package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/sqlite"
	"github.com/boddenberg/monoreport-bot-go/internal/port"
)

func newStore(t *testing.T) *sqlite.UserStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "data", "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	version, err := sqlite.Migrate(db)
	if err != nil {
		t.Fatalf("expected migrations to apply, got %v", err)
	}
	if version != 2 {
		t.Fatalf("expected schema version 2, got %d", version)
	}
	return sqlite.NewUserStore(db)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if _, err := sqlite.Migrate(db); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("migrations must leave the db open: %v", err)
	}
}

func TestGet_Unknown(t *testing.T) {
	u, err := newStore(t).Get(context.Background(), 42)
	if err != nil || u != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", u, err)
	}
}

func TestAdd_Upsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u := domain.NewUser(7, "Taras", "Shevchenko", "kobzar", "uk")
	if err := s.Add(ctx, u); err != nil {
		t.Fatal(err)
	}

	u.SealedToken = "sealed"
	u.SelectedAccounts = []string{"acc-1", "acc-2"}
	u.ReportHour, u.ReportMinute = 9, 30
	u.Deactivate(time.Unix(1700000000, 0))
	if err := s.Add(ctx, u); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got.SealedToken != "sealed" || len(got.SelectedAccounts) != 2 || got.ReportTime() != "09:30" {
		t.Errorf("unexpected user: %+v", got)
	}
	if got.IsActive() || got.BlockDate.Unix() != 1700000000 {
		t.Errorf("expected block date to persist, got %v", got.BlockDate)
	}
	if got.JoinDate.Unix() != u.JoinDate.Unix() {
		t.Errorf("join date changed: %v vs %v", got.JoinDate, u.JoinDate)
	}
}

func TestListDue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	due := domain.NewUser(1, "A", "", "", "en")
	due.SealedToken = "t"
	noToken := domain.NewUser(2, "B", "", "", "en")
	blocked := domain.NewUser(3, "C", "", "", "en")
	blocked.SealedToken = "t"
	blocked.Deactivate(time.Now())
	otherTime := domain.NewUser(4, "D", "", "", "en")
	otherTime.SealedToken = "t"
	otherTime.ReportHour = 8

	for _, u := range []*domain.User{due, noToken, blocked, otherTime} {
		if err := s.Add(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	users, err := s.ListDue(ctx, domain.DefaultReportHour, domain.DefaultReportMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != 1 {
		t.Errorf("expected only user 1 to be due, got %+v", users)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx port.UserStore) error {
		if err := tx.Add(ctx, domain.NewUser(9, "X", "", "", "en")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if u, _ := s.Get(ctx, 9); u != nil {
		t.Error("expected the insert to be rolled back")
	}
}

func TestWithTx_Commits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx port.UserStore) error {
		u := domain.NewUser(10, "Y", "", "", "en")
		if err := tx.Add(ctx, u); err != nil {
			return err
		}
		got, err := tx.Get(ctx, 10)
		if err != nil || got == nil {
			t.Errorf("expected read-your-writes inside the tx, got %v, %v", got, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if u, _ := s.Get(ctx, 10); u == nil {
		t.Error("expected the insert to be committed")
	}
}
