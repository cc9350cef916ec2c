// Package store persists accounts, memberships, transactions and the
// identities the ledger reads. Every call runs inside a transaction opened by
// Store.InTx.
package store

import (
	"context"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
)

// Store opens transactions against a backend.
type Store interface {
	// InTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
	// Bootstrap creates the schema and the permission catalogue. It is
	// idempotent.
	Bootstrap(ctx context.Context) error
	Close()
}

// Tx is the set of operations available inside a transaction.
// Lookups of missing rows return domain.ErrNotFound; constraint violations
// return an error wrapping domain.ErrValidation.
type Tx interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	IssueToken(ctx context.Context, userID int64, token string) error
	UserByToken(ctx context.Context, token string) (domain.User, error)

	CreateAccount(ctx context.Context, name string) (domain.Account, error)
	GetAccount(ctx context.Context, id int64) (domain.Account, error)
	ListAccounts(ctx context.Context, scope authz.Scope) ([]domain.Account, error)
	RenameAccount(ctx context.Context, id int64, name string) error
	DeleteAccount(ctx context.Context, id int64) error

	// FindMembership returns nil and no error when the user has no
	// membership on the account.
	FindMembership(ctx context.Context, accountID, userID int64) (*domain.Membership, error)
	GetMembership(ctx context.Context, id int64) (domain.Membership, error)
	ListMemberships(ctx context.Context, accountID int64) ([]domain.Membership, error)
	CreateMembership(ctx context.Context, accountID, userID int64, role domain.Role) (domain.Membership, error)
	SetMembershipRole(ctx context.Context, id int64, role domain.Role) (domain.Membership, error)
	DeleteMembership(ctx context.Context, id int64) error

	CreateTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	ListTransactions(ctx context.Context, scope authz.Scope) ([]domain.Transaction, error)
	// AccountTransactions returns the account's history in insertion order.
	AccountTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	// UserTransactions returns transactions on every account the user is a
	// member of, restricted to r when r is non-nil.
	UserTransactions(ctx context.Context, userID int64, r *domain.DateRange) ([]domain.Transaction, error)
}

const (
	uniqueMembershipMsg = "The fields user, account must make a unique set."
	unknownReferenceMsg = "Referenced user or account does not exist."
)
