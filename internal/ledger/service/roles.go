package service

import (
	"context"

	"aidledger/internal/ledger/roles"
	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
)

// GrantRole gives identity a role. Admin only.
func (s *Service) GrantRole(ctx context.Context, actor id.Identity, role roles.Role, identity id.Identity) (err error) {
	ctx, end := s.begin(ctx, "grant_role")
	defer end(&err)

	if err := s.requireAdminFor(ctx, actor, role, identity); err != nil {
		return err
	}
	if err := s.roles.Grant(ctx, role, identity); err != nil {
		return coded(err, "failed to grant role")
	}
	s.logAudit(ctx, string(audit.EventRoleGranted),
		"actor", actor,
		"role", role.String(),
		"reason", "granted "+role.String()+" to "+identity.String(),
	)
	return nil
}

// RevokeRole removes a role from identity. Admin only.
func (s *Service) RevokeRole(ctx context.Context, actor id.Identity, role roles.Role, identity id.Identity) (err error) {
	ctx, end := s.begin(ctx, "revoke_role")
	defer end(&err)

	if err := s.requireAdminFor(ctx, actor, role, identity); err != nil {
		return err
	}
	if err := s.roles.Revoke(ctx, role, identity); err != nil {
		return coded(err, "failed to revoke role")
	}
	s.logAudit(ctx, string(audit.EventRoleRevoked),
		"actor", actor,
		"role", role.String(),
		"reason", "revoked "+role.String()+" from "+identity.String(),
	)
	return nil
}

func (s *Service) requireAdminFor(ctx context.Context, actor id.Identity, role roles.Role, identity id.Identity) error {
	if _, err := roles.ParseRole(role.String()); err != nil {
		return err
	}
	if _, err := id.ParseIdentity(identity.String()); err != nil {
		return err
	}
	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return err
	}
	if !held.any(roles.RoleAdmin) {
		return notAuthorized("managing roles requires the Admin role")
	}
	return nil
}

// HasRole reports membership. Unknown identities hold no role.
func (s *Service) HasRole(ctx context.Context, role roles.Role, identity id.Identity) (bool, error) {
	ok, err := s.roles.Has(ctx, role, identity)
	return ok, coded(err, "failed to check role")
}

// RoleMembers lists the identities holding role.
func (s *Service) RoleMembers(ctx context.Context, role roles.Role) ([]id.Identity, error) {
	members, err := s.roles.Members(ctx, role)
	return members, coded(err, "failed to list role members")
}

// Bootstrap grants Admin without an actor check. The server calls it once at
// start so that roles can be managed at all.
func (s *Service) Bootstrap(ctx context.Context, admin id.Identity) error {
	if _, err := id.ParseIdentity(admin.String()); err != nil {
		return err
	}
	if err := s.roles.Grant(ctx, roles.RoleAdmin, admin); err != nil {
		return coded(err, "failed to bootstrap admin")
	}
	s.logAudit(ctx, string(audit.EventRoleGranted),
		"actor", admin,
		"role", roles.RoleAdmin.String(),
		"reason", "bootstrap",
	)
	return nil
}
