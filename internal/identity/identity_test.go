package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/store"
)

func TestTokenFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"Token xyz":   "xyz",
		"bearer  abc": "abc",
	}
	for in, want := range cases {
		got, err := TokenFromHeader(in)
		if err != nil || got != want {
			t.Fatalf("TokenFromHeader(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "abc", "Basic abc", "Bearer "} {
		if _, err := TokenFromHeader(bad); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("TokenFromHeader(%q): expected unauthenticated, got %v", bad, err)
		}
	}
}

func TestTokenAuthenticator(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	var uid int64
	err := s.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.CreateUser(ctx, domain.User{Username: "root", IsAdmin: true})
		if err != nil {
			return err
		}
		uid = u.ID
		return tx.IssueToken(ctx, u.ID, "secret")
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	auth := NewTokenAuthenticator(s)
	p, err := auth.Authenticate(ctx, "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != uid || !p.IsAdmin {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := auth.Authenticate(ctx, "wrong"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	got := FromContext(WithPrincipal(ctx, p))
	if got != p {
		t.Fatalf("context round trip lost principal")
	}
	if FromContext(ctx).Authenticated() {
		t.Fatalf("empty context must be anonymous")
	}
}
