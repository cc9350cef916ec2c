package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
)

// MemoryStore keeps everything in process. Transactions are serialised by a
// mutex and rolled back by restoring a snapshot.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	logger *slog.Logger
}

type memState struct {
	seq          int64
	users        map[int64]domain.User
	tokens       map[string]int64
	accounts     map[int64]domain.Account
	memberships  map[int64]domain.Membership
	transactions map[int64]domain.Transaction
	permissions  map[domain.Permission]string
}

func newMemState() *memState {
	return &memState{
		users:        map[int64]domain.User{},
		tokens:       map[string]int64{},
		accounts:     map[int64]domain.Account{},
		memberships:  map[int64]domain.Membership{},
		transactions: map[int64]domain.Transaction{},
		permissions:  map[domain.Permission]string{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.memberships {
		v.Permissions = append([]domain.Permission(nil), v.Permissions...)
		c.memberships[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.permissions {
		c.permissions[k] = v
	}
	return c
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{state: newMemState(), logger: logger}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{s: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Bootstrap(ctx context.Context) error {
	return s.InTx(ctx, func(Tx) error {
		for _, p := range domain.Permissions {
			if _, ok := s.state.permissions[p.Codename]; !ok {
				s.state.permissions[p.Codename] = p.Name
			}
		}
		s.logger.Info("store bootstrapped", "driver", "memory", "permissions", len(domain.Permissions))
		return nil
	})
}

func (s *MemoryStore) Close() {}

type memTx struct {
	s *memState
}

func (t *memTx) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	for _, existing := range t.s.users {
		if existing.Username == u.Username {
			return domain.User{}, domain.Validationf("username %q already exists", u.Username)
		}
	}
	u.ID = t.s.nextID()
	t.s.users[u.ID] = u
	return u, nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (t *memTx) IssueToken(_ context.Context, userID int64, token string) error {
	if _, ok := t.s.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	if _, ok := t.s.tokens[token]; ok {
		return domain.Validationf("token already issued")
	}
	t.s.tokens[token] = userID
	return nil
}

func (t *memTx) UserByToken(_ context.Context, token string) (domain.User, error) {
	id, ok := t.s.tokens[token]
	if !ok {
		return domain.User{}, domain.ErrUnauthenticated
	}
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return u, nil
}

// members returns the account's member ids in membership insertion order.
func (t *memTx) members(accountID int64) []int64 {
	ms := t.accountMemberships(accountID)
	ids := make([]int64, len(ms))
	for i, m := range ms {
		ids[i] = m.UserID
	}
	return ids
}

func (t *memTx) accountMemberships(accountID int64) []domain.Membership {
	out := []domain.Membership{}
	for _, m := range t.s.memberships {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) CreateAccount(_ context.Context, name string) (domain.Account, error) {
	a := domain.Account{ID: t.s.nextID(), Name: name, CreatedAt: time.Now().UTC()}
	t.s.accounts[a.ID] = a
	a.Users = []int64{}
	return a, nil
}

func (t *memTx) GetAccount(_ context.Context, id int64) (domain.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	a.Users = t.members(id)
	return a, nil
}

func (t *memTx) ListAccounts(_ context.Context, scope authz.Scope) ([]domain.Account, error) {
	out := []domain.Account{}
	for _, a := range t.s.accounts {
		a.Users = t.members(a.ID)
		if scope.Visible(a.Users) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) RenameAccount(_ context.Context, id int64, name string) error {
	a, ok := t.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	a.Name = name
	t.s.accounts[id] = a
	return nil
}

func (t *memTx) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := t.s.accounts[id]; !ok {
		return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	delete(t.s.accounts, id)
	for tid, tr := range t.s.transactions {
		if tr.AccountID == id {
			delete(t.s.transactions, tid)
		}
	}
	t.dropAccountMemberships(id)
	return nil
}

func (t *memTx) FindMembership(_ context.Context, accountID, userID int64) (*domain.Membership, error) {
	for _, m := range t.s.memberships {
		if m.AccountID == accountID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetMembership(_ context.Context, id int64) (domain.Membership, error) {
	m, ok := t.s.memberships[id]
	if !ok {
		return domain.Membership{}, fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (t *memTx) ListMemberships(_ context.Context, accountID int64) ([]domain.Membership, error) {
	return t.accountMemberships(accountID), nil
}

// rolePermissions mirrors the permissions join: only catalogued flags are granted.
func (t *memTx) rolePermissions(role domain.Role) []domain.Permission {
	out := []domain.Permission{}
	for _, p := range role.PermissionsFor() {
		if _, ok := t.s.permissions[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (t *memTx) CreateMembership(ctx context.Context, accountID, userID int64, role domain.Role) (domain.Membership, error) {
	if _, ok := t.s.accounts[accountID]; !ok {
		return domain.Membership{}, domain.Validationf(unknownReferenceMsg)
	}
	if _, ok := t.s.users[userID]; !ok {
		return domain.Membership{}, domain.Validationf(unknownReferenceMsg)
	}
	if existing, _ := t.FindMembership(ctx, accountID, userID); existing != nil {
		return domain.Membership{}, domain.Validationf(uniqueMembershipMsg)
	}
	m := domain.Membership{
		ID:          t.s.nextID(),
		UserID:      userID,
		AccountID:   accountID,
		Role:        role,
		Permissions: t.rolePermissions(role),
	}
	t.s.memberships[m.ID] = m
	return m, nil
}

func (t *memTx) SetMembershipRole(_ context.Context, id int64, role domain.Role) (domain.Membership, error) {
	m, ok := t.s.memberships[id]
	if !ok {
		return domain.Membership{}, fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	m.Role = role
	m.Permissions = t.rolePermissions(role)
	t.s.memberships[id] = m
	return m, nil
}

func (t *memTx) DeleteMembership(_ context.Context, id int64) error {
	if _, ok := t.s.memberships[id]; !ok {
		return fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	delete(t.s.memberships, id)
	return nil
}

func (t *memTx) dropAccountMemberships(accountID int64) {
	for id, m := range t.s.memberships {
		if m.AccountID == accountID {
			delete(t.s.memberships, id)
		}
	}
}

func (t *memTx) CreateTransaction(_ context.Context, tr domain.Transaction) (domain.Transaction, error) {
	if _, ok := t.s.accounts[tr.AccountID]; !ok {
		return domain.Transaction{}, fmt.Errorf("account %d: %w", tr.AccountID, domain.ErrNotFound)
	}
	tr.ID = t.s.nextID()
	t.s.transactions[tr.ID] = tr
	return tr, nil
}

func (t *memTx) GetTransaction(_ context.Context, id int64) (domain.Transaction, error) {
	tr, ok := t.s.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return tr, nil
}

func (t *memTx) filterTransactions(keep func(domain.Transaction) bool) []domain.Transaction {
	out := []domain.Transaction{}
	for _, tr := range t.s.transactions {
		if keep(tr) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) ListTransactions(_ context.Context, scope authz.Scope) ([]domain.Transaction, error) {
	visible := map[int64]bool{}
	for id := range t.s.accounts {
		visible[id] = scope.Visible(t.members(id))
	}
	return t.filterTransactions(func(tr domain.Transaction) bool { return visible[tr.AccountID] }), nil
}

func (t *memTx) AccountTransactions(_ context.Context, accountID int64) ([]domain.Transaction, error) {
	return t.filterTransactions(func(tr domain.Transaction) bool { return tr.AccountID == accountID }), nil
}

func (t *memTx) UserTransactions(_ context.Context, userID int64, r *domain.DateRange) ([]domain.Transaction, error) {
	member := map[int64]bool{}
	for _, m := range t.s.memberships {
		if m.UserID == userID {
			member[m.AccountID] = true
		}
	}
	out := t.filterTransactions(func(tr domain.Transaction) bool {
		return member[tr.AccountID] && (r == nil || r.Contains(tr.Date))
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Tx = (*memTx)(nil)
