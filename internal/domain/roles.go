package domain

import "strings"

// Role is the permission level of a membership.
type Role string

const (
	RoleViewer            Role = "VIEWER"
	RoleAdmin             Role = "ADMIN"
	RoleTransactionPoster Role = "TRANSACTION_POSTER"
)

// ParseRole accepts the wire names case-insensitively. Empty means VIEWER.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoleViewer:
		return RoleViewer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleTransactionPoster:
		return RoleTransactionPoster, nil
	}
	return "", Validationf("%q is not a valid permission_level", s)
}

// TransactionType classifies a transaction.
type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// ParseTransactionType accepts the wire names case-insensitively. Empty means DEPOSIT.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", Deposit:
		return Deposit, nil
	case Withdrawal:
		return Withdrawal, nil
	}
	return "", Validationf("%q is not a valid transaction_type", s)
}

// Permission is a fine-grained capability codename.
type Permission string

const (
	ViewAccount   Permission = "view_investment_account"
	AddAccount    Permission = "add_investment_account"
	ChangeAccount Permission = "change_investment_account"
	DeleteAccount Permission = "delete_investment_account"
	ViewTxn       Permission = "view_transaction"
	AddTxn        Permission = "add_transaction"
)

// PermissionDef is a catalogue entry for a permission.
type PermissionDef struct {
	Codename Permission
	Name     string
}

// Permissions is the fixed catalogue every installation must contain.
var Permissions = []PermissionDef{
	{ViewAccount, "Can view investment account"},
	{AddAccount, "Can add investment account"},
	{ChangeAccount, "Can change investment account"},
	{DeleteAccount, "Can delete investment account"},
	{ViewTxn, "Can view transaction"},
	{AddTxn, "Can add transaction"},
}

var rolePermissions = map[Role][]Permission{
	RoleViewer:            {ViewAccount, ViewTxn},
	RoleTransactionPoster: {ViewAccount, ViewTxn, AddTxn},
	RoleAdmin:             {ViewAccount, AddAccount, ChangeAccount, DeleteAccount, ViewTxn, AddTxn},
}

// PermissionsFor returns the flags granted by a role.
func (r Role) PermissionsFor() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
