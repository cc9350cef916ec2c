package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/store"
)

type createUserCmd struct {
	username string
	email    string
	admin    bool
}

func (*createUserCmd) Name() string     { return "create-user" }
func (*createUserCmd) Synopsis() string { return "registers a user and prints its id" }
func (*createUserCmd) Usage() string {
	return `ledgerctl create-user -username <name> [-email <email>] [-admin]
`
}

func (c *createUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "unique username")
	f.StringVar(&c.email, "email", "", "email address")
	f.BoolVar(&c.admin, "admin", false, "grant administrator rights")
}

func (c *createUserCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" {
		fmt.Fprintln(os.Stderr, "Error: -username is required")
		return subcommands.ExitUsageError
	}
	st, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	var u domain.User
	err = st.InTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.CreateUser(ctx, domain.User{Username: c.username, Email: c.email, IsAdmin: c.admin})
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(u.ID)
	return subcommands.ExitSuccess
}

type issueTokenCmd struct {
	userID int64
}

func (*issueTokenCmd) Name() string     { return "issue-token" }
func (*issueTokenCmd) Synopsis() string { return "issues a bearer token for a user and prints it" }
func (*issueTokenCmd) Usage() string {
	return `ledgerctl issue-token -user <id>
`
}

func (c *issueTokenCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.userID, "user", 0, "user id")
}

func (c *issueTokenCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	st, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	token := newToken()
	err = st.InTx(ctx, func(tx store.Tx) error {
		return tx.IssueToken(ctx, c.userID, token)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

// newToken returns 32 hex characters of random data.
func newToken() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}
