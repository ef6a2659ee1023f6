package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/permission"
	"tokoerp/backend/internal/store"
)

// ListPermissions returns stored permissions with their module filled in.
func (s *Service) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.repo.ListPermissions(ctx, s.guard)
	if err != nil {
		return nil, err
	}
	for i := range perms {
		perms[i].Module = permission.Resolve(perms[i].Name)
	}
	return perms, nil
}

func (s *Service) GroupedPermissions(ctx context.Context) ([]domain.PermissionGroup, error) {
	perms, err := s.repo.ListPermissions(ctx, s.guard)
	if err != nil {
		return nil, err
	}
	return permission.Group(perms), nil
}

// SeedPermissions stores the permission catalog and grants every permission
// to the admin role. Multi-tenant deployments also grant the restricted subset
// to the basic role, which is reported as the seeded role. Running it again
// inserts nothing.
func (s *Service) SeedPermissions(ctx context.Context, multiTenant bool) (domain.SeedResponse, error) {
	catalog := permission.AllPermissions()
	for i := range catalog {
		catalog[i].Guard = s.guard
	}
	inserted, err := s.repo.UpsertPermissions(ctx, catalog)
	if err != nil {
		return domain.SeedResponse{}, fmt.Errorf("seed permissions: %w", err)
	}

	// The admin role holds the full catalog in both modes.
	roleName := permission.AdminRole
	linked, err := s.seedRole(ctx, permission.AdminRole, permission.AdminMappings())
	if err != nil {
		return domain.SeedResponse{}, err
	}
	if multiTenant {
		roleName = permission.BasicRole
		n, err := s.seedRole(ctx, permission.BasicRole, permission.BasicMappings())
		if err != nil {
			return domain.SeedResponse{}, err
		}
		linked += n
	}

	s.logger.Info("permissions seeded",
		zap.String("role", roleName),
		zap.Bool("multi_tenant", multiTenant),
		zap.Int("permissions_inserted", inserted),
		zap.Int("mappings_inserted", linked),
	)
	return domain.SeedResponse{
		Role:                roleName,
		PermissionsInserted: inserted,
		MappingsInserted:    linked,
	}, nil
}

func (s *Service) seedRole(ctx context.Context, roleName string, mappings []domain.RoleMapping) (int, error) {
	role, err := s.repo.EnsureRole(ctx, roleName, s.guard)
	if err != nil {
		return 0, fmt.Errorf("seed role %s: %w", roleName, err)
	}
	names := make([]string, 0, len(mappings))
	for _, m := range mappings {
		names = append(names, m.Permission)
	}
	linked, err := s.repo.AttachPermissions(ctx, role.ID, s.guard, names)
	if err != nil {
		return 0, fmt.Errorf("seed role %s permissions: %w", roleName, err)
	}
	return linked, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *Service) CreateRole(ctx context.Context, req domain.RoleCreateRequest) (domain.Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Role{}, fmt.Errorf("role name is required: %w", store.ErrInvalidInput)
	}
	guard := strings.TrimSpace(req.GuardName)
	if guard == "" {
		guard = s.guard
	}

	role, err := s.repo.CreateRole(ctx, domain.Role{Name: name, GuardName: guard})
	if err != nil {
		return domain.Role{}, err
	}
	s.logger.Info("role created", s.actorField(ctx), zap.Int64("role_id", role.ID), zap.String("role", role.Name))
	return *role, nil
}

// RoleExists reports whether a role with name exists under the service guard.
func (s *Service) RoleExists(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.GetRoleByName(ctx, name, s.guard)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	}
	return false, err
}

func (s *Service) RolePermissions(ctx context.Context, roleID int64) (domain.RolePermissionsResponse, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return domain.RolePermissionsResponse{}, err
	}
	perms, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return domain.RolePermissionsResponse{}, err
	}
	for i := range perms {
		perms[i].Module = permission.Resolve(perms[i].Name)
	}
	return domain.RolePermissionsResponse{Role: *role, Permissions: perms}, nil
}

// SetRolePermissions replaces the permission set of a role. Every name must
// already be stored under the role's guard.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, names []string) (domain.RolePermissionsResponse, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return domain.RolePermissionsResponse{}, err
	}

	stored, err := s.repo.ListPermissions(ctx, role.GuardName)
	if err != nil {
		return domain.RolePermissionsResponse{}, err
	}
	known := make(map[string]struct{}, len(stored))
	for _, p := range stored {
		known[p.Name] = struct{}{}
	}

	wanted := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return domain.RolePermissionsResponse{}, fmt.Errorf("unknown permission %q: %w", name, store.ErrInvalidInput)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		wanted = append(wanted, name)
	}

	if err := s.repo.ReplaceRolePermissions(ctx, roleID, role.GuardName, wanted); err != nil {
		return domain.RolePermissionsResponse{}, err
	}
	s.logger.Info("role permissions replaced", s.actorField(ctx), zap.Int64("role_id", roleID), zap.Int("count", len(wanted)))
	return s.RolePermissions(ctx, roleID)
}
