package store

// schema is applied by Bootstrap. Statements must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		username   VARCHAR(150) NOT NULL UNIQUE,
		email      VARCHAR(254) NOT NULL DEFAULT '',
		is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		token      VARCHAR(64) PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id       BIGSERIAL PRIMARY KEY,
		codename VARCHAR(100) NOT NULL UNIQUE,
		name     VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		id               BIGSERIAL PRIMARY KEY,
		account_id       BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		user_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		permission_level VARCHAR(20) NOT NULL DEFAULT 'VIEWER'
			CHECK (permission_level IN ('VIEWER', 'ADMIN', 'TRANSACTION_POSTER')),
		UNIQUE (user_id, account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS membership_permissions (
		membership_id BIGINT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (membership_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id               BIGSERIAL PRIMARY KEY,
		account_id       BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		amount           NUMERIC(10, 2) NOT NULL,
		date             DATE NOT NULL,
		transaction_type VARCHAR(20) NOT NULL DEFAULT 'DEPOSIT'
			CHECK (transaction_type IN ('DEPOSIT', 'WITHDRAWAL'))
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_account_date_idx ON transactions (account_id, date)`,
	`CREATE INDEX IF NOT EXISTS memberships_account_idx ON memberships (account_id)`,
}
