// Package identity resolves bearer credentials to a domain.Principal.
// Credential issuance is out of scope; tokens are looked up as stored.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/store"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// TokenAuthenticator checks tokens against the store's auth_tokens table.
type TokenAuthenticator struct {
	store store.Store
}

func NewTokenAuthenticator(s store.Store) *TokenAuthenticator {
	return &TokenAuthenticator{store: s}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	var p domain.Principal
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.UserByToken(ctx, token)
		if err != nil {
			return err
		}
		p = domain.Principal{UserID: u.ID, IsAdmin: u.IsAdmin}
		return nil
	})
	return p, err
}

// TokenFromHeader extracts the credential from an Authorization header.
// Both "Bearer <t>" and "Token <t>" are accepted.
func TokenFromHeader(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return "", errMalformed
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
	default:
		return "", errMalformed
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMalformed
	}
	return token, nil
}

var errMalformed = errors.Join(domain.ErrUnauthenticated, errors.New("malformed authorization header"))

type principalKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller, or the anonymous principal.
func FromContext(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}
