// Package roles holds the role authority: which identities hold which ledger
// roles. Membership checks never fail for unknown identities; they report false.
package roles

import (
	"context"
	"slices"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// Role is a ledger permission group.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleAidOfficer Role = "AidOfficer"
	RoleSupervisor Role = "Supervisor"
	RoleAuditor    Role = "Auditor"
)

// All lists every role.
var All = []Role{RoleAdmin, RoleAidOfficer, RoleSupervisor, RoleAuditor}

// Operators may issue aid and move records through the lifecycle.
var Operators = []Role{RoleAdmin, RoleAidOfficer, RoleSupervisor}

// Approvers may approve or reject pending records.
var Approvers = []Role{RoleAdmin, RoleSupervisor}

// Reviewers may read a record's audit trail.
var Reviewers = []Role{RoleAdmin, RoleSupervisor, RoleAuditor}

func (r Role) IsValid() bool {
	return slices.Contains(All, r)
}

func (r Role) String() string { return string(r) }

func ParseRole(v string) (Role, error) {
	r := Role(v)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown role: "+v)
	}
	return r, nil
}

// Store persists role membership. Grant and Revoke are idempotent.
type Store interface {
	Grant(ctx context.Context, role Role, identity id.Identity) error
	Revoke(ctx context.Context, role Role, identity id.Identity) error
	Has(ctx context.Context, role Role, identity id.Identity) (bool, error)
	Members(ctx context.Context, role Role) ([]id.Identity, error)
}

// HasAny reports whether identity holds at least one of roles.
func HasAny(ctx context.Context, s Store, identity id.Identity, roles ...Role) (bool, error) {
	if identity.IsNil() {
		return false, nil
	}
	for _, r := range roles {
		ok, err := s.Has(ctx, r, identity)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
