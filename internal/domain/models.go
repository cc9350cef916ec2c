package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of transaction dates.
const DateLayout = "2006-01-02"

// MaxAccountNameLength bounds Account.Name.
const MaxAccountNameLength = 100

// User is an identity owned by the identity provider. The ledger only reads it.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// Account is a named investment account shared by its members.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Users     []int64   `json:"users"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership binds one user to one account with exactly one role.
// Permissions are derived from Role whenever the membership is written.
type Membership struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user"`
	AccountID   int64        `json:"account"`
	Role        Role         `json:"permission_level"`
	Permissions []Permission `json:"-"`
}

// Has reports whether the membership carries the permission flag.
func (m *Membership) Has(p Permission) bool {
	if m == nil {
		return false
	}
	for _, have := range m.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Transaction is a dated, typed monetary entry against an account.
// Amount is stored exactly as submitted, sign included.
type Transaction struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Type      TransactionType `json:"transaction_type"`
}

// Assignment is one requested (user, role) pair in a membership batch.
type Assignment struct {
	UserID int64
	Role   Role
}

// DateRange is an optional closed interval filter on transaction dates.
// A nil *DateRange means no filtering.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the closed interval.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Principal is the authenticated caller as resolved by the identity provider.
// The zero value is an anonymous caller.
type Principal struct {
	UserID  int64
	IsAdmin bool
}

// Authenticated reports whether the principal identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != 0
}
