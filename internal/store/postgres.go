package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/investledger/internal/authz"
	"github.com/punchamoorthee/investledger/internal/domain"
)

type PostgresStore struct {
	Db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connString string, logger *slog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{Db: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// InTx runs fn under READ COMMITTED. Uniqueness and cascades are left to the
// schema constraints.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, logger: s.logger}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.Db, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema: %w", err)
			}
		}
		for _, p := range domain.Permissions {
			_, err := tx.Exec(ctx,
				"INSERT INTO permissions (codename, name) VALUES ($1, $2) ON CONFLICT (codename) DO NOTHING",
				string(p.Codename), p.Name)
			if err != nil {
				return fmt.Errorf("permission %s: %w", p.Codename, err)
			}
		}
		s.logger.Info("store bootstrapped", "tables", len(schema), "permissions", len(domain.Permissions))
		return nil
	})
}

type pgTx struct {
	tx     pgx.Tx
	logger *slog.Logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *pgTx) fail(op string, err error, attrs ...any) error {
	t.logger.Error("store operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	return fmt.Errorf("%s: %w", op, err)
}

// Users

func (t *pgTx) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	err := t.tx.QueryRow(ctx,
		"INSERT INTO users (username, email, is_admin) VALUES ($1, $2, $3) RETURNING id",
		u.Username, u.Email, u.IsAdmin,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.Validationf("username %q already exists", u.Username)
		}
		return domain.User{}, t.fail("create user", err)
	}
	return u, nil
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := t.tx.QueryRow(ctx,
		"SELECT id, username, email, is_admin FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, t.fail("get user", err, "user_id", id)
	}
	return u, nil
}

func (t *pgTx) IssueToken(ctx context.Context, userID int64, token string) error {
	_, err := t.tx.Exec(ctx, "INSERT INTO auth_tokens (token, user_id) VALUES ($1, $2)", token, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return domain.Validationf("token already issued")
		}
		return t.fail("issue token", err, "user_id", userID)
	}
	return nil
}

func (t *pgTx) UserByToken(ctx context.Context, token string) (domain.User, error) {
	var u domain.User
	err := t.tx.QueryRow(ctx,
		`SELECT u.id, u.username, u.email, u.is_admin
		   FROM auth_tokens a JOIN users u ON u.id = a.user_id
		  WHERE a.token = $1`, token,
	).Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, t.fail("user by token", err)
	}
	return u, nil
}

// Accounts

const accountSelect = `
SELECT a.id, a.name, a.created_at,
       COALESCE(array_agg(m.user_id ORDER BY m.id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
  FROM accounts a
  LEFT JOIN memberships m ON m.account_id = a.id`

func scanAccount(r rowScanner) (domain.Account, error) {
	var a domain.Account
	if err := r.Scan(&a.ID, &a.Name, &a.CreatedAt, &a.Users); err != nil {
		return domain.Account{}, err
	}
	if a.Users == nil {
		a.Users = []int64{}
	}
	return a, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, name string) (domain.Account, error) {
	a := domain.Account{Name: name, Users: []int64{}}
	err := t.tx.QueryRow(ctx,
		"INSERT INTO accounts (name) VALUES ($1) RETURNING id, created_at", name,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return domain.Account{}, t.fail("create account", err)
	}
	return a, nil
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, accountSelect+" WHERE a.id = $1 GROUP BY a.id", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, t.fail("get account", err, "account_id", id)
	}
	return a, nil
}

func (t *pgTx) ListAccounts(ctx context.Context, scope authz.Scope) ([]domain.Account, error) {
	rows, err := t.tx.Query(ctx, accountSelect+`
		WHERE $1 OR EXISTS (SELECT 1 FROM memberships s WHERE s.account_id = a.id AND s.user_id = $2)
		GROUP BY a.id
		ORDER BY a.id`, scope.All, scope.UserID)
	if err != nil {
		return nil, t.fail("list accounts", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, t.fail("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail("list accounts", err)
	}
	return accounts, nil
}

func (t *pgTx) RenameAccount(ctx context.Context, id int64, name string) error {
	tag, err := t.tx.Exec(ctx, "UPDATE accounts SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return t.fail("rename account", err, "account_id", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return t.fail("delete account", err, "account_id", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Memberships

const membershipSelect = `
SELECT m.id, m.user_id, m.account_id, m.permission_level,
       ARRAY(SELECT p.codename
               FROM membership_permissions mp
               JOIN permissions p ON p.id = mp.permission_id
              WHERE mp.membership_id = m.id
              ORDER BY p.id)
  FROM memberships m`

func scanMembership(r rowScanner) (domain.Membership, error) {
	var (
		m     domain.Membership
		role  string
		perms []string
	)
	if err := r.Scan(&m.ID, &m.UserID, &m.AccountID, &role, &perms); err != nil {
		return domain.Membership{}, err
	}
	m.Role = domain.Role(role)
	m.Permissions = make([]domain.Permission, len(perms))
	for i, p := range perms {
		m.Permissions[i] = domain.Permission(p)
	}
	return m, nil
}

func (t *pgTx) FindMembership(ctx context.Context, accountID, userID int64) (*domain.Membership, error) {
	m, err := scanMembership(t.tx.QueryRow(ctx,
		membershipSelect+" WHERE m.account_id = $1 AND m.user_id = $2", accountID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, t.fail("find membership", err, "account_id", accountID, "user_id", userID)
	}
	return &m, nil
}

func (t *pgTx) GetMembership(ctx context.Context, id int64) (domain.Membership, error) {
	m, err := scanMembership(t.tx.QueryRow(ctx, membershipSelect+" WHERE m.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Membership{}, fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Membership{}, t.fail("get membership", err, "membership_id", id)
	}
	return m, nil
}

func (t *pgTx) ListMemberships(ctx context.Context, accountID int64) ([]domain.Membership, error) {
	rows, err := t.tx.Query(ctx, membershipSelect+" WHERE m.account_id = $1 ORDER BY m.id", accountID)
	if err != nil {
		return nil, t.fail("list memberships", err, "account_id", accountID)
	}
	defer rows.Close()

	out := []domain.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, t.fail("scan membership", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail("list memberships", err)
	}
	return out, nil
}

func (t *pgTx) CreateMembership(ctx context.Context, accountID, userID int64, role domain.Role) (domain.Membership, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		"INSERT INTO memberships (account_id, user_id, permission_level) VALUES ($1, $2, $3) RETURNING id",
		accountID, userID, string(role),
	).Scan(&id)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.Membership{}, domain.Validationf(uniqueMembershipMsg)
		case isForeignKeyViolation(err):
			return domain.Membership{}, domain.Validationf(unknownReferenceMsg)
		}
		return domain.Membership{}, t.fail("create membership", err, "account_id", accountID, "user_id", userID)
	}
	if err := t.grantRolePermissions(ctx, id, role); err != nil {
		return domain.Membership{}, err
	}
	return t.GetMembership(ctx, id)
}

func (t *pgTx) SetMembershipRole(ctx context.Context, id int64, role domain.Role) (domain.Membership, error) {
	tag, err := t.tx.Exec(ctx, "UPDATE memberships SET permission_level = $1 WHERE id = $2", string(role), id)
	if err != nil {
		return domain.Membership{}, t.fail("set membership role", err, "membership_id", id)
	}
	if tag.RowsAffected() == 0 {
		return domain.Membership{}, fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	if err := t.grantRolePermissions(ctx, id, role); err != nil {
		return domain.Membership{}, err
	}
	return t.GetMembership(ctx, id)
}

// grantRolePermissions replaces the membership's flags with those of role.
func (t *pgTx) grantRolePermissions(ctx context.Context, membershipID int64, role domain.Role) error {
	if _, err := t.tx.Exec(ctx, "DELETE FROM membership_permissions WHERE membership_id = $1", membershipID); err != nil {
		return t.fail("clear membership permissions", err, "membership_id", membershipID)
	}
	perms := role.PermissionsFor()
	codenames := make([]string, len(perms))
	for i, p := range perms {
		codenames[i] = string(p)
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO membership_permissions (membership_id, permission_id)
		 SELECT $1, id FROM permissions WHERE codename = ANY($2)`,
		membershipID, codenames)
	if err != nil {
		return t.fail("grant membership permissions", err, "membership_id", membershipID)
	}
	return nil
}

func (t *pgTx) DeleteMembership(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM memberships WHERE id = $1", id)
	if err != nil {
		return t.fail("delete membership", err, "membership_id", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Transactions

const transactionSelect = `
SELECT t.id, t.account_id, t.amount::text, t.date, t.transaction_type
  FROM transactions t`

func scanTransaction(r rowScanner) (domain.Transaction, error) {
	var (
		tr     domain.Transaction
		amount string
		kind   string
		date   time.Time
	)
	if err := r.Scan(&tr.ID, &tr.AccountID, &amount, &date, &kind); err != nil {
		return domain.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	tr.Amount = d
	tr.Date = date
	tr.Type = domain.TransactionType(kind)
	return tr, nil
}

func (t *pgTx) collectTransactions(ctx context.Context, op, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, t.fail(op, err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, t.fail("scan transaction", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail(op, err)
	}
	return out, nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr domain.Transaction) (domain.Transaction, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, amount, date, transaction_type)
		 VALUES ($1, $2::text::numeric, $3, $4) RETURNING id`,
		tr.AccountID, domain.FormatAmount(tr.Amount), tr.Date, string(tr.Type),
	).Scan(&tr.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Transaction{}, fmt.Errorf("account %d: %w", tr.AccountID, domain.ErrNotFound)
		}
		return domain.Transaction{}, t.fail("create transaction", err, "account_id", tr.AccountID)
	}
	return tr, nil
}

func (t *pgTx) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, transactionSelect+" WHERE t.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, t.fail("get transaction", err, "transaction_id", id)
	}
	return tr, nil
}

func (t *pgTx) ListTransactions(ctx context.Context, scope authz.Scope) ([]domain.Transaction, error) {
	return t.collectTransactions(ctx, "list transactions", transactionSelect+`
		WHERE $1 OR EXISTS (SELECT 1 FROM memberships m WHERE m.account_id = t.account_id AND m.user_id = $2)
		ORDER BY t.id`, scope.All, scope.UserID)
}

func (t *pgTx) AccountTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return t.collectTransactions(ctx, "account transactions",
		transactionSelect+" WHERE t.account_id = $1 ORDER BY t.id", accountID)
}

func (t *pgTx) UserTransactions(ctx context.Context, userID int64, r *domain.DateRange) ([]domain.Transaction, error) {
	var q strings.Builder
	q.WriteString(transactionSelect)
	q.WriteString(" JOIN memberships m ON m.account_id = t.account_id WHERE m.user_id = $1")
	args := []any{userID}
	if r != nil {
		q.WriteString(" AND t.date BETWEEN $2 AND $3")
		args = append(args, r.Start, r.End)
	}
	q.WriteString(" ORDER BY t.date, t.id")
	return t.collectTransactions(ctx, "user transactions", q.String(), args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Store = (*PostgresStore)(nil)
var _ Tx = (*pgTx)(nil)
