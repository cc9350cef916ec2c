package authz

import (
	"errors"
	"testing"

	"github.com/punchamoorthee/investledger/internal/domain"
)

func member(role domain.Role) *domain.Membership {
	return &domain.Membership{UserID: 1, AccountID: 1, Role: role, Permissions: role.PermissionsFor()}
}

func TestAuthorize(t *testing.T) {
	user := domain.Principal{UserID: 1}
	admin := domain.Principal{UserID: 99, IsAdmin: true}

	cases := []struct {
		name string
		p    domain.Principal
		op   Operation
		res  Resource
		m    *domain.Membership
		want error
	}{
		{"anonymous", domain.Principal{}, OpList, ResAccount, nil, domain.ErrUnauthenticated},
		{"list accounts needs no role", user, OpList, ResAccount, nil, nil},
		{"create account needs no role", user, OpCreate, ResAccount, nil, nil},
		{"viewer retrieves", user, OpRetrieve, ResAccount, member(domain.RoleViewer), nil},
		{"non-member retrieve is not found", user, OpRetrieve, ResAccount, nil, domain.ErrNotFound},
		{"admin retrieves without membership", admin, OpRetrieve, ResAccount, nil, nil},
		{"viewer cannot update", user, OpUpdate, ResAccount, member(domain.RoleViewer), domain.ErrPermissionDenied},
		{"viewer cannot delete", user, OpDelete, ResAccount, member(domain.RoleViewer), domain.ErrPermissionDenied},
		{"poster cannot delete", user, OpDelete, ResAccount, member(domain.RoleTransactionPoster), domain.ErrPermissionDenied},
		{"account admin deletes", user, OpDelete, ResAccount, member(domain.RoleAdmin), nil},
		{"viewer cannot add members", user, OpCreate, ResMembership, member(domain.RoleViewer), domain.ErrPermissionDenied},
		{"account admin adds members", user, OpCreate, ResMembership, member(domain.RoleAdmin), nil},
		{"viewer cannot post", user, OpCreate, ResTransaction, member(domain.RoleViewer), domain.ErrPermissionDenied},
		{"poster posts", user, OpCreate, ResTransaction, member(domain.RoleTransactionPoster), nil},
		{"account admin posts", user, OpCreate, ResTransaction, member(domain.RoleAdmin), nil},
		{"non-member post is not found", user, OpCreate, ResTransaction, nil, domain.ErrNotFound},
		{"superuser without role cannot post", admin, OpCreate, ResTransaction, nil, domain.ErrPermissionDenied},
		{"viewer reads transactions", user, OpRetrieve, ResTransaction, member(domain.RoleViewer), nil},
		{"user cannot list user transactions", user, OpList, ResUserTransactions, member(domain.RoleAdmin), domain.ErrPermissionDenied},
		{"admin lists user transactions", admin, OpList, ResUserTransactions, nil, nil},
		{"unknown rule is denied", user, OpUpdate, ResTransaction, member(domain.RoleAdmin), domain.ErrPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.p, tc.op, tc.res, tc.m)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListScope(t *testing.T) {
	s := ListScope(domain.Principal{UserID: 7})
	if s.All || s.UserID != 7 {
		t.Fatalf("unexpected scope %+v", s)
	}
	if !s.Visible([]int64{3, 7}) || s.Visible([]int64{3}) {
		t.Fatalf("scope visibility wrong")
	}
	if !ListScope(domain.Principal{UserID: 1, IsAdmin: true}).Visible(nil) {
		t.Fatalf("admin scope must see everything")
	}
}

func TestValidateAssignments(t *testing.T) {
	ok := []domain.Assignment{
		{UserID: 7, Role: domain.RoleAdmin},
		{UserID: 8, Role: domain.RoleAdmin},
		{UserID: 7, Role: domain.RoleViewer},
	}
	if err := ValidateAssignments(ok); err != nil {
		t.Fatalf("expected valid batch, got %v", err)
	}

	dup := []domain.Assignment{
		{UserID: 7, Role: domain.RoleAdmin},
		{UserID: 7, Role: domain.RoleAdmin},
	}
	if err := ValidateAssignments(dup); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// The default role and an explicit VIEWER are the same pair.
	implicit := []domain.Assignment{{UserID: 3}, {UserID: 3, Role: domain.RoleViewer}}
	if err := ValidateAssignments(implicit); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := ValidateAssignments([]domain.Assignment{{UserID: 0}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero user, got %v", err)
	}
}
