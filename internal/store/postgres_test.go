package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
)

// errDiscard rolls a test transaction back once its assertions have run.
var errDiscard = errors.New("discard")

func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DB_SOURCE")
	if dsn == "" {
		t.Skip("DB_SOURCE not set; skipping postgres store tests")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// discardTx runs fn and rolls everything back.
func discardTx(t *testing.T, s *PostgresStore, fn func(ctx context.Context, tx Tx) error) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, func(tx Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errDiscard
	})
	if !errors.Is(err, errDiscard) {
		t.Fatalf("tx: %v", err)
	}
}

func TestPostgresStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	var id int64
	err := s.InTx(ctx, func(tx Tx) error {
		a, err := tx.CreateAccount(ctx, "rolled back")
		if err != nil {
			return err
		}
		id = a.ID
		return errDiscard
	})
	if !errors.Is(err, errDiscard) {
		t.Fatalf("expected discard, got %v", err)
	}

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetAccount(ctx, id)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rolled back account to be missing, got %v", err)
	}
}

func TestPostgresStoreMembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	var u domain.User
	var a domain.Account
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		if u, err = tx.CreateUser(ctx, domain.User{Username: uniqueName("alice")}); err != nil {
			return err
		}
		if a, err = tx.CreateAccount(ctx, "Growth"); err != nil {
			return err
		}
		m, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleTransactionPoster)
		if err != nil {
			return err
		}
		if !m.Has(domain.AddTxn) || !m.Has(domain.ViewAccount) || m.Has(domain.DeleteAccount) {
			t.Fatalf("unexpected permissions %v", m.Permissions)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		s.Db.Exec(ctx, "DELETE FROM accounts WHERE id = $1", a.ID)
		s.Db.Exec(ctx, "DELETE FROM users WHERE id = $1", u.ID)
	})

	// Each violation aborts its own transaction, so each gets a fresh one.
	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleAdmin)
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error on duplicate membership, got %v", err)
	}

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.CreateMembership(ctx, a.ID, u.ID+1_000_000_000, domain.RoleViewer)
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error on unknown user, got %v", err)
	}

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.CreateUser(ctx, domain.User{Username: u.Username})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error on duplicate username, got %v", err)
	}

	discardTx(t, s, func(ctx context.Context, tx Tx) error {
		ms, err := tx.ListMemberships(ctx, a.ID)
		if err != nil {
			return err
		}
		if len(ms) != 1 || ms[0].Role != domain.RoleTransactionPoster {
			t.Fatalf("expected the original membership only, got %+v", ms)
		}
		return nil
	})
}

func TestPostgresStoreAccountMembersAndScope(t *testing.T) {
	s := newPostgresTestStore(t)

	discardTx(t, s, func(ctx context.Context, tx Tx) error {
		alice, _ := tx.CreateUser(ctx, domain.User{Username: uniqueName("alice")})
		bob, _ := tx.CreateUser(ctx, domain.User{Username: uniqueName("bob")})
		a, _ := tx.CreateAccount(ctx, "Shared")
		empty, _ := tx.CreateAccount(ctx, "Empty")
		if _, err := tx.CreateMembership(ctx, a.ID, bob.ID, domain.RoleViewer); err != nil {
			return err
		}
		if _, err := tx.CreateMembership(ctx, a.ID, alice.ID, domain.RoleAdmin); err != nil {
			return err
		}

		got, err := tx.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		if len(got.Users) != 2 || got.Users[0] != bob.ID || got.Users[1] != alice.ID {
			t.Fatalf("expected members in membership order, got %v", got.Users)
		}
		got, err = tx.GetAccount(ctx, empty.ID)
		if err != nil {
			return err
		}
		if len(got.Users) != 0 {
			t.Fatalf("expected empty member list, got %v", got.Users)
		}

		visible, err := tx.ListAccounts(ctx, authz.Scope{UserID: bob.ID})
		if err != nil {
			return err
		}
		if len(visible) != 1 || visible[0].ID != a.ID {
			t.Fatalf("expected only the shared account, got %+v", visible)
		}

		m, err := tx.FindMembership(ctx, empty.ID, bob.ID)
		if err != nil || m != nil {
			t.Fatalf("expected no membership, got %+v %v", m, err)
		}
		return nil
	})
}

func TestPostgresStoreDeleteAccountCascades(t *testing.T) {
	s := newPostgresTestStore(t)

	discardTx(t, s, func(ctx context.Context, tx Tx) error {
		u, _ := tx.CreateUser(ctx, domain.User{Username: uniqueName("bob")})
		a, _ := tx.CreateAccount(ctx, "Income")
		if _, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleAdmin); err != nil {
			return err
		}
		if _, err := tx.CreateTransaction(ctx, domain.Transaction{
			AccountID: a.ID, Amount: decimal.NewFromInt(10), Date: mustDay(t, "2024-03-01"), Type: domain.Deposit,
		}); err != nil {
			return err
		}
		if err := tx.DeleteAccount(ctx, a.ID); err != nil {
			return err
		}
		if m, _ := tx.FindMembership(ctx, a.ID, u.ID); m != nil {
			t.Fatalf("membership survived account delete")
		}
		txs, err := tx.UserTransactions(ctx, u.ID, nil)
		if err != nil {
			return err
		}
		if len(txs) != 0 {
			t.Fatalf("transactions survived account delete: %d", len(txs))
		}
		if _, err := tx.GetAccount(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := tx.DeleteAccount(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
		return nil
	})
}

func TestPostgresStoreUserTransactionsRange(t *testing.T) {
	s := newPostgresTestStore(t)

	discardTx(t, s, func(ctx context.Context, tx Tx) error {
		u, _ := tx.CreateUser(ctx, domain.User{Username: uniqueName("carol")})
		a, _ := tx.CreateAccount(ctx, "A")
		other, _ := tx.CreateAccount(ctx, "B")
		if _, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleViewer); err != nil {
			return err
		}
		for _, d := range []string{"2024-02-01", "2024-01-01", "2023-12-31", "2024-01-31"} {
			if _, err := tx.CreateTransaction(ctx, domain.Transaction{
				AccountID: a.ID, Amount: decimal.RequireFromString("12.34"), Date: mustDay(t, d), Type: domain.Deposit,
			}); err != nil {
				return err
			}
		}
		if _, err := tx.CreateTransaction(ctx, domain.Transaction{
			AccountID: other.ID, Amount: decimal.NewFromInt(1), Date: mustDay(t, "2024-01-15"), Type: domain.Deposit,
		}); err != nil {
			return err
		}

		all, err := tx.UserTransactions(ctx, u.ID, nil)
		if err != nil {
			return err
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 transactions, got %d", len(all))
		}
		got, err := tx.UserTransactions(ctx, u.ID, &domain.DateRange{Start: mustDay(t, "2024-01-01"), End: mustDay(t, "2024-01-31")})
		if err != nil {
			return err
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 in range, got %d", len(got))
		}
		if got[0].Date.Format(domain.DateLayout) != "2024-01-01" || got[1].Date.Format(domain.DateLayout) != "2024-01-31" {
			t.Fatalf("unexpected order %v", got)
		}
		if domain.FormatAmount(got[0].Amount) != "12.34" {
			t.Fatalf("amount did not round trip: %s", got[0].Amount)
		}
		return nil
	})
}

func mustDay(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(v)
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	return d
}
