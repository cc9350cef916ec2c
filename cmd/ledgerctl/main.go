// Command ledgerctl administers the ledger database: schema bootstrap,
// demo data and out-of-band token issuance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/punchamoorthee/investledger/internal/store"
)

var dbSource = flag.String("db", os.Getenv("DB_SOURCE"), "PostgreSQL connection string (defaults to $DB_SOURCE)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&migrateCmd{}, "database")
	commander.Register(&seedCmd{}, "database")
	commander.Register(&createUserCmd{}, "identity")
	commander.Register(&issueTokenCmd{}, "identity")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func openStore(ctx context.Context) (*store.PostgresStore, error) {
	if *dbSource == "" {
		return nil, fmt.Errorf("no database: set -db or DB_SOURCE")
	}
	return store.NewPostgresStore(ctx, *dbSource, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "creates the schema and the permission catalogue" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate

  Applies the schema and inserts any missing permission records.
  Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	st, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	if err := st.Bootstrap(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: migrate failed: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(os.Stderr, "Schema is up to date.")
	return subcommands.ExitSuccess
}
