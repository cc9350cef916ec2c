// Package authz decides who may read or mutate which accounts, memberships
// and transactions. Everything here is a pure function of its arguments.
package authz

import (
	"fmt"

	"github.com/punchamoorthee/investledger/internal/domain"
)

type Operation string

const (
	OpList     Operation = "list"
	OpCreate   Operation = "create"
	OpRetrieve Operation = "retrieve"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
)

type Resource string

const (
	ResAccount          Resource = "account"
	ResMembership       Resource = "membership"
	ResTransaction      Resource = "transaction"
	ResUserTransactions Resource = "user_transactions"
)

// Rule keys the policy table.
type Rule struct {
	Op       Operation
	Resource Resource
}

// Capability is what a caller must hold for a Rule to pass.
//
// An empty Permission only requires authentication. AdminBypass lets
// principals with IsAdmin pass without a membership. AdminOnly restricts the
// rule to admins and ignores memberships entirely.
type Capability struct {
	Permission  domain.Permission
	AdminBypass bool
	AdminOnly   bool
}

// Policy is the complete access table. Rules missing from it are denied.
var Policy = map[Rule]Capability{
	{OpList, ResAccount}:     {},
	{OpCreate, ResAccount}:   {},
	{OpRetrieve, ResAccount}: {Permission: domain.ViewAccount, AdminBypass: true},
	{OpUpdate, ResAccount}:   {Permission: domain.ChangeAccount, AdminBypass: true},
	{OpDelete, ResAccount}:   {Permission: domain.DeleteAccount, AdminBypass: true},

	{OpList, ResMembership}:   {Permission: domain.ViewAccount, AdminBypass: true},
	{OpCreate, ResMembership}: {Permission: domain.ChangeAccount, AdminBypass: true},
	{OpUpdate, ResMembership}: {Permission: domain.ChangeAccount, AdminBypass: true},
	{OpDelete, ResMembership}: {Permission: domain.ChangeAccount, AdminBypass: true},

	{OpList, ResTransaction}:     {},
	{OpRetrieve, ResTransaction}: {Permission: domain.ViewTxn, AdminBypass: true},
	// Posting always needs a role on the account, admins included.
	{OpCreate, ResTransaction}: {Permission: domain.AddTxn},

	{OpList, ResUserTransactions}: {AdminOnly: true},
}

// Authorize evaluates Policy for p performing op on res. m is the caller's
// membership on the account the resource belongs to, or nil.
//
// A non-admin without a membership gets ErrNotFound so that account
// existence does not leak. A caller who can see the account but lacks the
// capability gets ErrPermissionDenied.
func Authorize(p domain.Principal, op Operation, res Resource, m *domain.Membership) error {
	if !p.Authenticated() {
		return domain.ErrUnauthenticated
	}
	c, ok := Policy[Rule{op, res}]
	if !ok {
		return fmt.Errorf("%w: %s %s is not permitted", domain.ErrPermissionDenied, op, res)
	}
	if c.AdminOnly {
		if p.IsAdmin {
			return nil
		}
		return fmt.Errorf("%w: %s %s requires an administrator", domain.ErrPermissionDenied, op, res)
	}
	if c.Permission == "" {
		return nil
	}
	if p.IsAdmin && c.AdminBypass {
		return nil
	}
	if m == nil {
		if p.IsAdmin {
			return fmt.Errorf("%w: %s requires a membership on the account", domain.ErrPermissionDenied, c.Permission)
		}
		return domain.ErrNotFound
	}
	if !m.Has(c.Permission) {
		return fmt.Errorf("%w: role %s does not grant %s", domain.ErrPermissionDenied, m.Role, c.Permission)
	}
	return nil
}

// Scope narrows list queries.
type Scope struct {
	All    bool
	UserID int64
}

// ListScope returns the visible set for p: everything for admins, otherwise
// only rows on accounts p is a member of.
func ListScope(p domain.Principal) Scope {
	if p.IsAdmin {
		return Scope{All: true}
	}
	return Scope{UserID: p.UserID}
}

// Visible reports whether an account with the given member set is in scope.
func (s Scope) Visible(members []int64) bool {
	if s.All {
		return true
	}
	for _, id := range members {
		if id == s.UserID {
			return true
		}
	}
	return false
}
