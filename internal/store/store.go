package store

import (
	"context"
	"errors"

	"tokoerp/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
	ErrInUse        = errors.New("still referenced")
)

type UnitRepository interface {
	ListUnits(ctx context.Context, activeOnly bool) ([]domain.Unit, error)
	GetUnit(ctx context.Context, id int64) (*domain.Unit, error)
	CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	SetUnitsActive(ctx context.Context, ids []int64, active bool) (int, error)
	// DeleteUnits removes the units in one step, failing with ErrInUse while
	// an active unit outside ids still names one of them as base unit.
	DeleteUnits(ctx context.Context, ids []int64) (int, error)
}

type PermissionRepository interface {
	ListPermissions(ctx context.Context, guard string) ([]domain.Permission, error)
	// UpsertPermissions inserts missing (name, guard) rows and reports how many were new.
	UpsertPermissions(ctx context.Context, seeds []domain.PermissionSeed) (int, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	GetRole(ctx context.Context, id int64) (*domain.Role, error)
	GetRoleByName(ctx context.Context, name string, guard string) (*domain.Role, error)
	CreateRole(ctx context.Context, role domain.Role) (*domain.Role, error)
	// EnsureRole returns the role, creating it when missing.
	EnsureRole(ctx context.Context, name string, guard string) (*domain.Role, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]domain.Permission, error)
	// AttachPermissions links names to the role, skipping existing links.
	AttachPermissions(ctx context.Context, roleID int64, guard string, names []string) (int, error)
	// ReplaceRolePermissions makes names the complete permission set of the role.
	ReplaceRolePermissions(ctx context.Context, roleID int64, guard string, names []string) error
	RoleHasPermission(ctx context.Context, roleName string, guard string, permission string) (bool, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Repository interface {
	UnitRepository
	PermissionRepository
	UserRepository
}
