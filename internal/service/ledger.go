package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/store"
)

var authzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_authz_decisions_total",
	Help: "Authorization decisions, labeled by resource, operation and outcome",
}, []string{"resource", "operation", "outcome"})

// AccountInput is the payload for creating an account. Every listed user
// is assigned Role. The creator becomes ADMIN unless listed.
type AccountInput struct {
	Name  string
	Users []int64
	Role  domain.Role
}

// AccountPatch updates an account. Nil fields are left unchanged. A non-nil
// Users becomes the member set: unlisted members are removed, listed members
// keep their role and new ones are added with Role.
type AccountPatch struct {
	Name  *string
	Users *[]int64
	Role  domain.Role
}

type AccountDetails struct {
	Account      domain.Account
	Transactions []domain.Transaction
	TotalBalance decimal.Decimal
}

type TransactionInput struct {
	AccountID int64
	Amount    decimal.Decimal
	Date      time.Time
	Type      domain.TransactionType
}

// UserTransactionReport is the admin view of one user's transactions.
type UserTransactionReport struct {
	UserID       int64
	Transactions []domain.Transaction
	TotalBalance decimal.Decimal
}

// LedgerService runs every operation in a single store transaction and
// consults authz before reading or writing anything on an account.
type LedgerService struct {
	store  store.Store
	logger *slog.Logger
}

func NewLedgerService(s store.Store, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{store: s, logger: logger}
}

func (s *LedgerService) authorize(p domain.Principal, op authz.Operation, res authz.Resource, m *domain.Membership) error {
	err := authz.Authorize(p, op, res, m)
	outcome := "allow"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = "hidden"
	case errors.Is(err, domain.ErrUnauthenticated):
		outcome = "unauthenticated"
	default:
		outcome = "deny"
	}
	authzDecisions.WithLabelValues(string(res), string(op), outcome).Inc()
	if err != nil && outcome == "deny" {
		s.logger.Info("authorization denied",
			"user_id", p.UserID, "resource", res, "operation", op, "reason", err.Error())
	}
	return err
}

// accountAccess loads the account and the caller's membership on it, then
// authorizes op.
func (s *LedgerService) accountAccess(ctx context.Context, tx store.Tx, p domain.Principal, op authz.Operation, res authz.Resource, accountID int64) (domain.Account, *domain.Membership, error) {
	if !p.Authenticated() {
		return domain.Account{}, nil, domain.ErrUnauthenticated
	}
	acct, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, nil, err
	}
	m, err := tx.FindMembership(ctx, accountID, p.UserID)
	if err != nil {
		return domain.Account{}, nil, err
	}
	if err := s.authorize(p, op, res, m); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, nil, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
		}
		return domain.Account{}, nil, err
	}
	return acct, m, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Validationf("name is required")
	}
	if len([]rune(name)) > domain.MaxAccountNameLength {
		return "", domain.Validationf("name must be at most %d characters", domain.MaxAccountNameLength)
	}
	return name, nil
}

func assignments(users []int64, role domain.Role) []domain.Assignment {
	out := make([]domain.Assignment, len(users))
	for i, u := range users {
		out[i] = domain.Assignment{UserID: u, Role: role}
	}
	return out
}

// createMemberships persists a validated batch. Any failure aborts the
// surrounding transaction.
func createMemberships(ctx context.Context, tx store.Tx, accountID int64, batch []domain.Assignment) ([]domain.Membership, error) {
	out := make([]domain.Membership, 0, len(batch))
	for _, a := range batch {
		role, err := domain.ParseRole(string(a.Role))
		if err != nil {
			return nil, err
		}
		m, err := tx.CreateMembership(ctx, accountID, a.UserID, role)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Accounts

func (s *LedgerService) ListAccounts(ctx context.Context, p domain.Principal) ([]domain.Account, error) {
	if err := s.authorize(p, authz.OpList, authz.ResAccount, nil); err != nil {
		return nil, err
	}
	var out []domain.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAccounts(ctx, authz.ListScope(p))
		return err
	})
	return out, err
}

func (s *LedgerService) CreateAccount(ctx context.Context, p domain.Principal, in AccountInput) (domain.Account, error) {
	if err := s.authorize(p, authz.OpCreate, authz.ResAccount, nil); err != nil {
		return domain.Account{}, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return domain.Account{}, err
	}
	batch := assignments(in.Users, in.Role)
	if err := authz.ValidateAssignments(batch); err != nil {
		return domain.Account{}, err
	}
	listed := false
	for _, u := range in.Users {
		if u == p.UserID {
			listed = true
			break
		}
	}
	if !listed {
		batch = append([]domain.Assignment{{UserID: p.UserID, Role: domain.RoleAdmin}}, batch...)
	}

	var acct domain.Account
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		created, err := tx.CreateAccount(ctx, name)
		if err != nil {
			return err
		}
		if _, err := createMemberships(ctx, tx, created.ID, batch); err != nil {
			return err
		}
		acct, err = tx.GetAccount(ctx, created.ID)
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}
	s.logger.Info("account created", "account_id", acct.ID, "user_id", p.UserID, "members", len(acct.Users))
	return acct, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, p domain.Principal, id int64) (domain.Account, error) {
	var acct domain.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		acct, _, err = s.accountAccess(ctx, tx, p, authz.OpRetrieve, authz.ResAccount, id)
		return err
	})
	return acct, err
}

func (s *LedgerService) UpdateAccount(ctx context.Context, p domain.Principal, id int64, patch AccountPatch) (domain.Account, error) {
	var name string
	if patch.Name != nil {
		var err error
		if name, err = validateName(*patch.Name); err != nil {
			return domain.Account{}, err
		}
	}
	var batch []domain.Assignment
	if patch.Users != nil {
		batch = assignments(*patch.Users, patch.Role)
		if err := authz.ValidateAssignments(batch); err != nil {
			return domain.Account{}, err
		}
	}

	var acct domain.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpUpdate, authz.ResAccount, id); err != nil {
			return err
		}
		if patch.Name != nil {
			if err := tx.RenameAccount(ctx, id, name); err != nil {
				return err
			}
		}
		if patch.Users != nil {
			if err := s.setMembers(ctx, tx, id, batch); err != nil {
				return err
			}
		}
		var err error
		acct, err = tx.GetAccount(ctx, id)
		return err
	})
	return acct, err
}

// setMembers makes the account's member set equal to batch. Members still
// listed keep their membership and role; only newcomers get the batch role.
func (s *LedgerService) setMembers(ctx context.Context, tx store.Tx, accountID int64, batch []domain.Assignment) error {
	wanted := make(map[int64]bool, len(batch))
	for _, a := range batch {
		wanted[a.UserID] = true
	}
	current, err := tx.ListMemberships(ctx, accountID)
	if err != nil {
		return err
	}
	kept := make(map[int64]bool, len(current))
	for _, m := range current {
		if wanted[m.UserID] {
			kept[m.UserID] = true
			continue
		}
		if err := tx.DeleteMembership(ctx, m.ID); err != nil {
			return err
		}
	}
	var added []domain.Assignment
	for _, a := range batch {
		if !kept[a.UserID] {
			added = append(added, a)
		}
	}
	_, err = createMemberships(ctx, tx, accountID, added)
	return err
}

func (s *LedgerService) DeleteAccount(ctx context.Context, p domain.Principal, id int64) error {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpDelete, authz.ResAccount, id); err != nil {
			return err
		}
		return tx.DeleteAccount(ctx, id)
	})
	if err == nil {
		s.logger.Info("account deleted", "account_id", id, "user_id", p.UserID)
	}
	return err
}

// AccountDetails returns the account with its full history in insertion
// order and the derived balance.
func (s *LedgerService) AccountDetails(ctx context.Context, p domain.Principal, id int64) (AccountDetails, error) {
	var d AccountDetails
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		acct, _, err := s.accountAccess(ctx, tx, p, authz.OpRetrieve, authz.ResAccount, id)
		if err != nil {
			return err
		}
		txs, err := tx.AccountTransactions(ctx, id)
		if err != nil {
			return err
		}
		d = AccountDetails{Account: acct, Transactions: txs, TotalBalance: domain.TotalBalance(txs)}
		return nil
	})
	return d, err
}

// Memberships

func (s *LedgerService) ListMemberships(ctx context.Context, p domain.Principal, accountID int64) ([]domain.Membership, error) {
	var out []domain.Membership
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpList, authz.ResMembership, accountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListMemberships(ctx, accountID)
		return err
	})
	return out, err
}

// AddMemberships assigns a batch of users to the account. Either every
// membership in the batch persists or none does.
func (s *LedgerService) AddMemberships(ctx context.Context, p domain.Principal, accountID int64, batch []domain.Assignment) ([]domain.Membership, error) {
	var out []domain.Membership
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpCreate, authz.ResMembership, accountID); err != nil {
			return err
		}
		if len(batch) == 0 {
			return domain.Validationf("at least one membership is required")
		}
		if err := authz.ValidateAssignments(batch); err != nil {
			return err
		}
		var err error
		out, err = createMemberships(ctx, tx, accountID, batch)
		return err
	})
	return out, err
}

// accountMembership loads a membership and hides it unless it belongs to accountID.
func accountMembership(ctx context.Context, tx store.Tx, accountID, membershipID int64) (domain.Membership, error) {
	m, err := tx.GetMembership(ctx, membershipID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.AccountID != accountID {
		return domain.Membership{}, fmt.Errorf("membership %d: %w", membershipID, domain.ErrNotFound)
	}
	return m, nil
}

func (s *LedgerService) UpdateMembership(ctx context.Context, p domain.Principal, accountID, membershipID int64, role domain.Role) (domain.Membership, error) {
	role, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.Membership{}, err
	}
	var out domain.Membership
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpUpdate, authz.ResMembership, accountID); err != nil {
			return err
		}
		if _, err := accountMembership(ctx, tx, accountID, membershipID); err != nil {
			return err
		}
		var err error
		out, err = tx.SetMembershipRole(ctx, membershipID, role)
		return err
	})
	return out, err
}

func (s *LedgerService) RemoveMembership(ctx context.Context, p domain.Principal, accountID, membershipID int64) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpDelete, authz.ResMembership, accountID); err != nil {
			return err
		}
		if _, err := accountMembership(ctx, tx, accountID, membershipID); err != nil {
			return err
		}
		return tx.DeleteMembership(ctx, membershipID)
	})
}

// Transactions

func (s *LedgerService) ListTransactions(ctx context.Context, p domain.Principal) ([]domain.Transaction, error) {
	if err := s.authorize(p, authz.OpList, authz.ResTransaction, nil); err != nil {
		return nil, err
	}
	var out []domain.Transaction
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, authz.ListScope(p))
		return err
	})
	return out, err
}

func (s *LedgerService) GetTransaction(ctx context.Context, p domain.Principal, id int64) (domain.Transaction, error) {
	var out domain.Transaction
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if !p.Authenticated() {
			return domain.ErrUnauthenticated
		}
		tr, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		m, err := tx.FindMembership(ctx, tr.AccountID, p.UserID)
		if err != nil {
			return err
		}
		if err := s.authorize(p, authz.OpRetrieve, authz.ResTransaction, m); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
			}
			return err
		}
		out = tr
		return nil
	})
	return out, err
}

// CreateTransaction posts a transaction. Only members holding
// add_transaction (ADMIN, TRANSACTION_POSTER) may post; nothing is written
// otherwise.
func (s *LedgerService) CreateTransaction(ctx context.Context, p domain.Principal, in TransactionInput) (domain.Transaction, error) {
	if in.AccountID <= 0 {
		return domain.Transaction{}, domain.Validationf("account is required")
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return domain.Transaction{}, err
	}
	if in.Date.IsZero() {
		return domain.Transaction{}, domain.Validationf("date is required")
	}
	kind, err := domain.ParseTransactionType(string(in.Type))
	if err != nil {
		return domain.Transaction{}, err
	}

	var out domain.Transaction
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.accountAccess(ctx, tx, p, authz.OpCreate, authz.ResTransaction, in.AccountID); err != nil {
			return err
		}
		var err error
		out, err = tx.CreateTransaction(ctx, domain.Transaction{
			AccountID: in.AccountID,
			Amount:    in.Amount,
			Date:      in.Date,
			Type:      kind,
		})
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logger.Info("transaction posted",
		"transaction_id", out.ID, "account_id", out.AccountID, "user_id", p.UserID,
		"amount", domain.FormatAmount(out.Amount), "type", out.Type)
	return out, nil
}

// UserTransactions is the administrator view of every transaction on the
// accounts a user belongs to, optionally limited to a closed date range.
func (s *LedgerService) UserTransactions(ctx context.Context, p domain.Principal, userID int64, r *domain.DateRange) (UserTransactionReport, error) {
	if err := s.authorize(p, authz.OpList, authz.ResUserTransactions, nil); err != nil {
		return UserTransactionReport{}, err
	}
	if r != nil && r.End.Before(r.Start) {
		return UserTransactionReport{}, domain.Validationf("start_date must not be after end_date")
	}
	var out UserTransactionReport
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		txs, err := tx.UserTransactions(ctx, userID, r)
		if err != nil {
			return err
		}
		out = UserTransactionReport{UserID: userID, Transactions: txs, TotalBalance: domain.TotalBalance(txs)}
		return nil
	})
	return out, err
}
