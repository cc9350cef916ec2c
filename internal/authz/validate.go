package authz

import "github.com/punchamoorthee/investledger/internal/domain"

// ValidateAssignments rejects a membership batch that repeats a
// (user, permission_level) pair or names no valid user. It runs before
// anything is persisted.
func ValidateAssignments(batch []domain.Assignment) error {
	type pair struct {
		user int64
		role domain.Role
	}
	seen := make(map[pair]struct{}, len(batch))
	for _, a := range batch {
		if a.UserID <= 0 {
			return domain.Validationf("invalid user id %d", a.UserID)
		}
		role, err := domain.ParseRole(string(a.Role))
		if err != nil {
			return err
		}
		k := pair{a.UserID, role}
		if _, dup := seen[k]; dup {
			return domain.Validationf("A user cannot have the same permission level for an investment account multiple times.")
		}
		seen[k] = struct{}{}
	}
	return nil
}
