package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/store"
)

// countSeedUsers reports how many seed-* users exist. Seeding only proceeds
// on a confirmed zero.
func countSeedUsers(ctx context.Context, db *pgxpool.Pool) (int, error) {
	var count int
	err := db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE username LIKE 'seed-%'").Scan(&count)
	return count, err
}

// seedCmd fills an empty database with demo users, tokens and accounts.
// Every account gets an ADMIN, a TRANSACTION_POSTER and a VIEWER.
type seedCmd struct {
	users    int
	accounts int
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "bulk loads demo users, tokens and accounts" }
func (*seedCmd) Usage() string {
	return `ledgerctl seed [-users N] [-accounts M]

  Creates N users named seed-<i> with one token each and M accounts with
  three members. Prints "<user_id> <token>" per user on stdout, suitable for
  the benchmark. Does nothing when the seed users already exist.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.users, "users", 100, "number of users")
	f.IntVar(&c.accounts, "accounts", 1000, "number of accounts")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.users < 3 || c.accounts < 1 {
		fmt.Fprintln(os.Stderr, "Error: need at least 3 users and 1 account")
		return subcommands.ExitUsageError
	}
	st, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	if err := st.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	log.Println("--- Seeding Database ---")

	count, err := countSeedUsers(ctx, st.Db)
	if err != nil {
		log.Fatalf("Counting seed users failed: %v", err)
	}
	if count > 0 {
		log.Printf("Database already has %d seed users. Skipping.", count)
		return subcommands.ExitSuccess
	}

	// Users and accounts go through CopyFrom; memberships through the store
	// so their permission flags are granted.
	log.Printf("Generating %d users...", c.users)
	userRows := make([][]interface{}, 0, c.users)
	for i := 0; i < c.users; i++ {
		name := fmt.Sprintf("seed-%d", i)
		userRows = append(userRows, []interface{}{name, name + "@example.com", false, time.Now()})
	}
	if _, err := st.Db.CopyFrom(ctx,
		pgx.Identifier{"users"},
		[]string{"username", "email", "is_admin", "created_at"},
		pgx.CopyFromRows(userRows),
	); err != nil {
		log.Fatalf("Bulk user insert failed: %v", err)
	}

	rows, err := st.Db.Query(ctx, "SELECT id FROM users WHERE username LIKE 'seed-%' ORDER BY id")
	if err != nil {
		log.Fatalf("Reading seed users failed: %v", err)
	}
	userIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		log.Fatalf("Reading seed users failed: %v", err)
	}

	tokenRows := make([][]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		token := newToken()
		tokenRows = append(tokenRows, []interface{}{token, id, time.Now()})
		fmt.Printf("%d %s\n", id, token)
	}
	if _, err := st.Db.CopyFrom(ctx,
		pgx.Identifier{"auth_tokens"},
		[]string{"token", "user_id", "created_at"},
		pgx.CopyFromRows(tokenRows),
	); err != nil {
		log.Fatalf("Bulk token insert failed: %v", err)
	}

	log.Printf("Generating %d accounts...", c.accounts)
	accountRows := make([][]interface{}, 0, c.accounts)
	for i := 0; i < c.accounts; i++ {
		accountRows = append(accountRows, []interface{}{fmt.Sprintf("Seed account %d", i), time.Now()})
	}
	if _, err := st.Db.CopyFrom(ctx,
		pgx.Identifier{"accounts"},
		[]string{"name", "created_at"},
		pgx.CopyFromRows(accountRows),
	); err != nil {
		log.Fatalf("Bulk account insert failed: %v", err)
	}

	rows, err = st.Db.Query(ctx, "SELECT id FROM accounts WHERE name LIKE 'Seed account %' ORDER BY id")
	if err != nil {
		log.Fatalf("Reading seed accounts failed: %v", err)
	}
	accountIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		log.Fatalf("Reading seed accounts failed: %v", err)
	}

	roles := []domain.Role{domain.RoleAdmin, domain.RoleTransactionPoster, domain.RoleViewer}
	err = st.InTx(ctx, func(tx store.Tx) error {
		for i, accountID := range accountIDs {
			for j, role := range roles {
				userID := userIDs[(i+j)%len(userIDs)]
				if _, err := tx.CreateMembership(ctx, accountID, userID, role); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Membership insert failed: %v", err)
	}

	log.Printf("Successfully seeded %d users and %d accounts.", len(userIDs), len(accountIDs))
	return subcommands.ExitSuccess
}
