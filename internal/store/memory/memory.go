package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	units      map[int64]domain.Unit
	nextUnitID int64

	permissions      map[int64]domain.Permission
	permissionByKey  map[string]int64
	nextPermissionID int64

	roles           map[int64]domain.Role
	nextRoleID      int64
	rolePermissions map[int64]map[int64]struct{}

	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		units:           make(map[int64]domain.Unit),
		permissions:     make(map[int64]domain.Permission),
		permissionByKey: make(map[string]int64),
		roles:           make(map[int64]domain.Role),
		rolePermissions: make(map[int64]map[int64]struct{}),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo units and users for dev mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// values fall back to dev defaults with a warning.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	f := func(v float64) *float64 { return &v }
	id := func(v int64) *int64 { return &v }
	for _, u := range []domain.Unit{
		{Code: "pc", Name: "Piece"},
		{Code: "box", Name: "Box", BaseUnitID: id(1), Operator: domain.OperatorMultiply, OperationValue: f(12)},
		{Code: "dozen", Name: "Dozen", BaseUnitID: id(1), Operator: domain.OperatorMultiply, OperationValue: f(12)},
		{Code: "carton", Name: "Carton", BaseUnitID: id(2), Operator: domain.OperatorMultiply, OperationValue: f(10)},
		{Code: "g", Name: "Gram"},
		{Code: "kg", Name: "Kilogram", BaseUnitID: id(5), Operator: domain.OperatorMultiply, OperationValue: f(1000)},
		{Code: "ml", Name: "Milliliter"},
		{Code: "l", Name: "Liter", BaseUnitID: id(7), Operator: domain.OperatorMultiply, OperationValue: f(1000)},
	} {
		u.Active = true
		if _, err := s.CreateUnit(context.Background(), u); err != nil {
			logger.Fatal("seed unit", zap.String("code", u.Code), zap.Error(err))
		}
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "Admin"},
		{"staff", staffPwd, "Staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListUnits(_ context.Context, activeOnly bool) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Unit, 0, len(s.units))
	for _, u := range s.units {
		if activeOnly && !u.Active {
			continue
		}
		out = append(out, cloneUnit(u))
	}
	slices.SortFunc(out, func(a, b domain.Unit) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetUnit(_ context.Context, id int64) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneUnit(u)
	return &out, nil
}

func (s *Store) CreateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Code) == "" || strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unitClashLocked(unit, 0) {
		return nil, store.ErrConflict
	}
	if unit.BaseUnitID != nil {
		if _, ok := s.units[*unit.BaseUnitID]; !ok {
			return nil, fmt.Errorf("base unit %d: %w", *unit.BaseUnitID, store.ErrNotFound)
		}
	}

	s.nextUnitID++
	unit.ID = s.nextUnitID
	s.units[unit.ID] = cloneUnit(unit)
	out := cloneUnit(unit)
	return &out, nil
}

func (s *Store) UpdateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Code) == "" || strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.units[unit.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if s.unitClashLocked(unit, unit.ID) {
		return nil, store.ErrConflict
	}
	if unit.BaseUnitID != nil {
		if _, ok := s.units[*unit.BaseUnitID]; !ok {
			return nil, fmt.Errorf("base unit %d: %w", *unit.BaseUnitID, store.ErrNotFound)
		}
	}

	s.units[unit.ID] = cloneUnit(unit)
	out := cloneUnit(unit)
	return &out, nil
}

func (s *Store) SetUnitsActive(_ context.Context, ids []int64, active bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for _, id := range ids {
		u, ok := s.units[id]
		if !ok {
			continue
		}
		u.Active = active
		s.units[id] = u
		affected++
	}
	return affected, nil
}

func (s *Store) DeleteUnits(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dep := range s.dependentsLocked(ids) {
		if dep.Active && !slices.Contains(ids, dep.ID) {
			return 0, fmt.Errorf("unit %d is the base unit of %s: %w", *dep.BaseUnitID, dep.Code, store.ErrInUse)
		}
	}

	affected := 0
	for _, id := range ids {
		if _, ok := s.units[id]; !ok {
			continue
		}
		delete(s.units, id)
		affected++
	}
	return affected, nil
}

// dependentsLocked returns units whose base unit is one of ids, ordered by id.
func (s *Store) dependentsLocked(ids []int64) []domain.Unit {
	out := make([]domain.Unit, 0)
	for _, u := range s.units {
		if u.BaseUnitID != nil && slices.Contains(ids, *u.BaseUnitID) {
			out = append(out, cloneUnit(u))
		}
	}
	slices.SortFunc(out, func(a, b domain.Unit) int { return cmpInt64(a.ID, b.ID) })
	return out
}

func (s *Store) unitClashLocked(unit domain.Unit, selfID int64) bool {
	for id, existing := range s.units {
		if id == selfID {
			continue
		}
		if strings.EqualFold(existing.Code, unit.Code) || strings.EqualFold(existing.Name, unit.Name) {
			return true
		}
	}
	return false
}

func (s *Store) ListPermissions(_ context.Context, guard string) ([]domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if guard != "" && p.GuardName != guard {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Permission) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpsertPermissions(_ context.Context, seeds []domain.PermissionSeed) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, seed := range seeds {
		if seed.Name == "" || seed.Guard == "" {
			return inserted, store.ErrInvalidInput
		}
		key := permissionKey(seed.Name, seed.Guard)
		if _, ok := s.permissionByKey[key]; ok {
			continue
		}
		s.nextPermissionID++
		s.permissions[s.nextPermissionID] = domain.Permission{
			ID:        s.nextPermissionID,
			Name:      seed.Name,
			GuardName: seed.Guard,
		}
		s.permissionByKey[key] = s.nextPermissionID
		inserted++
	}
	return inserted, nil
}

func (s *Store) ListRoles(_ context.Context) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.Role) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetRole(_ context.Context, id int64) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) GetRoleByName(_ context.Context, name string, guard string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roleByNameLocked(name, guard)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CreateRole(_ context.Context, role domain.Role) (*domain.Role, error) {
	if role.Name == "" || role.GuardName == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roleByNameLocked(role.Name, role.GuardName); exists {
		return nil, store.ErrConflict
	}
	return s.insertRoleLocked(role), nil
}

func (s *Store) EnsureRole(_ context.Context, name string, guard string) (*domain.Role, error) {
	if name == "" || guard == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.roleByNameLocked(name, guard); ok {
		return &r, nil
	}
	return s.insertRoleLocked(domain.Role{Name: name, GuardName: guard}), nil
}

func (s *Store) ListRolePermissions(_ context.Context, roleID int64) ([]domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.roles[roleID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]domain.Permission, 0, len(s.rolePermissions[roleID]))
	for permID := range s.rolePermissions[roleID] {
		out = append(out, s.permissions[permID])
	}
	slices.SortFunc(out, func(a, b domain.Permission) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) AttachPermissions(_ context.Context, roleID int64, guard string, names []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.permissionIDsLocked(roleID, guard, names)
	if err != nil {
		return 0, err
	}
	linked := s.rolePermissions[roleID]
	inserted := 0
	for _, id := range ids {
		if _, ok := linked[id]; ok {
			continue
		}
		linked[id] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *Store) ReplaceRolePermissions(_ context.Context, roleID int64, guard string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.permissionIDsLocked(roleID, guard, names)
	if err != nil {
		return err
	}
	linked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		linked[id] = struct{}{}
	}
	s.rolePermissions[roleID] = linked
	return nil
}

func (s *Store) RoleHasPermission(_ context.Context, roleName string, guard string, permission string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roleByNameLocked(roleName, guard)
	if !ok {
		return false, nil
	}
	permID, ok := s.permissionByKey[permissionKey(permission, guard)]
	if !ok {
		return false, nil
	}
	_, granted := s.rolePermissions[role.ID][permID]
	return granted, nil
}

func (s *Store) permissionIDsLocked(roleID int64, guard string, names []string) ([]int64, error) {
	if _, ok := s.roles[roleID]; !ok {
		return nil, store.ErrNotFound
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := s.permissionByKey[permissionKey(name, guard)]
		if !ok {
			return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) roleByNameLocked(name string, guard string) (domain.Role, bool) {
	for _, r := range s.roles {
		if r.Name == name && r.GuardName == guard {
			return r, true
		}
	}
	return domain.Role{}, false
}

func (s *Store) insertRoleLocked(role domain.Role) *domain.Role {
	s.nextRoleID++
	role.ID = s.nextRoleID
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	s.roles[role.ID] = role
	s.rolePermissions[role.ID] = make(map[int64]struct{})
	out := role
	return &out
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func permissionKey(name string, guard string) string {
	return guard + "|" + name
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneUnit(src domain.Unit) domain.Unit {
	dst := src
	if src.BaseUnitID != nil {
		v := *src.BaseUnitID
		dst.BaseUnitID = &v
	}
	if src.OperationValue != nil {
		v := *src.OperationValue
		dst.OperationValue = &v
	}
	return dst
}
