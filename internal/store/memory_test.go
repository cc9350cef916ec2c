package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(nil)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.CreateAccount(ctx, "rolled back"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.InTx(ctx, func(tx Tx) error {
		accounts, err := tx.ListAccounts(ctx, authz.Scope{All: true})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(accounts) != 0 {
			t.Fatalf("expected no accounts after rollback, got %d", len(accounts))
		}
		return nil
	})
}

func TestMemoryStoreMembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InTx(ctx, func(tx Tx) error {
		u, err := tx.CreateUser(ctx, domain.User{Username: "alice"})
		if err != nil {
			return err
		}
		a, err := tx.CreateAccount(ctx, "Growth")
		if err != nil {
			return err
		}
		m, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleTransactionPoster)
		if err != nil {
			return err
		}
		if !m.Has(domain.AddTxn) || m.Has(domain.DeleteAccount) {
			t.Fatalf("unexpected permissions %v", m.Permissions)
		}
		_, err = tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleAdmin)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error on duplicate membership, got %v", err)
		}
		_, err = tx.CreateMembership(ctx, a.ID, 4242, domain.RoleViewer)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error on unknown user, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestMemoryStoreDeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InTx(ctx, func(tx Tx) error {
		u, _ := tx.CreateUser(ctx, domain.User{Username: "bob"})
		a, _ := tx.CreateAccount(ctx, "Income")
		if _, err := tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleAdmin); err != nil {
			return err
		}
		if _, err := tx.CreateTransaction(ctx, domain.Transaction{
			AccountID: a.ID, Amount: decimal.NewFromInt(10), Date: time.Now(), Type: domain.Deposit,
		}); err != nil {
			return err
		}
		if err := tx.DeleteAccount(ctx, a.ID); err != nil {
			return err
		}
		if m, _ := tx.FindMembership(ctx, a.ID, u.ID); m != nil {
			t.Fatalf("membership survived account delete")
		}
		txs, _ := tx.UserTransactions(ctx, u.ID, nil)
		if len(txs) != 0 {
			t.Fatalf("transactions survived account delete: %d", len(txs))
		}
		if _, err := tx.GetAccount(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestMemoryStoreUserTransactionsRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := func(v string) time.Time {
		d, err := domain.ParseDate(v)
		if err != nil {
			t.Fatalf("date: %v", err)
		}
		return d
	}

	_ = s.InTx(ctx, func(tx Tx) error {
		u, _ := tx.CreateUser(ctx, domain.User{Username: "carol"})
		a, _ := tx.CreateAccount(ctx, "A")
		other, _ := tx.CreateAccount(ctx, "B")
		_, _ = tx.CreateMembership(ctx, a.ID, u.ID, domain.RoleViewer)
		for _, d := range []string{"2024-02-01", "2024-01-01", "2023-12-31", "2024-01-31"} {
			_, _ = tx.CreateTransaction(ctx, domain.Transaction{AccountID: a.ID, Amount: decimal.NewFromInt(1), Date: day(d), Type: domain.Deposit})
		}
		_, _ = tx.CreateTransaction(ctx, domain.Transaction{AccountID: other.ID, Amount: decimal.NewFromInt(1), Date: day("2024-01-15"), Type: domain.Deposit})

		all, _ := tx.UserTransactions(ctx, u.ID, nil)
		if len(all) != 4 {
			t.Fatalf("expected 4 transactions, got %d", len(all))
		}
		got, _ := tx.UserTransactions(ctx, u.ID, &domain.DateRange{Start: day("2024-01-01"), End: day("2024-01-31")})
		if len(got) != 2 {
			t.Fatalf("expected 2 in range, got %d", len(got))
		}
		if got[0].Date.Format(domain.DateLayout) != "2024-01-01" || got[1].Date.Format(domain.DateLayout) != "2024-01-31" {
			t.Fatalf("unexpected order %v", got)
		}
		return nil
	})
}
