package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/permission"
	"tokoerp/backend/internal/store"
	"tokoerp/backend/internal/store/memory"
	"tokoerp/backend/internal/unitconv"
)

type mapUnitCache struct {
	mu      sync.Mutex
	units   map[int64]domain.Unit
	deleted []int64
}

func newMapUnitCache() *mapUnitCache {
	return &mapUnitCache{units: make(map[int64]domain.Unit)}
}

func (c *mapUnitCache) Get(_ context.Context, id int64) (*domain.Unit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.units[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (c *mapUnitCache) Set(_ context.Context, unit *domain.Unit, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[unit.ID] = *unit
	return nil
}

func (c *mapUnitCache) Delete(_ context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.units, id)
	}
	c.deleted = append(c.deleted, ids...)
	return nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := New(memory.NewSeeded(nil), nil, nil, Options{})
	if _, err := svc.SeedPermissions(context.Background(), false); err != nil {
		t.Fatalf("seed permissions: %v", err)
	}
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestConvertQuantityCartonToPiece(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.ConvertQuantity(context.Background(), domain.ConvertRequest{FromUnitID: 4, ToUnitID: 1, Quantity: 2})
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if resp.Result != 240 {
		t.Fatalf("expected 2 carton = 240 pc, got %v", resp.Result)
	}
	if resp.BaseUnit != "pc" || resp.BaseQuantity == nil || *resp.BaseQuantity != 240 {
		t.Fatalf("unexpected base resolution: %+v", resp)
	}
}

func TestConvertQuantityBetweenSiblings(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.ConvertQuantity(context.Background(), domain.ConvertRequest{FromUnitID: 2, ToUnitID: 3, Quantity: 3})
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if resp.Result != 3 {
		t.Fatalf("expected 3 box = 3 dozen, got %v", resp.Result)
	}
}

func TestConvertQuantityIncompatible(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ConvertQuantity(context.Background(), domain.ConvertRequest{FromUnitID: 6, ToUnitID: 8, Quantity: 1})
	if !errors.Is(err, unitconv.ErrIncompatibleUnits) {
		t.Fatalf("expected ErrIncompatibleUnits, got %v", err)
	}
}

func TestConvertQuantityUnknownUnit(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ConvertQuantity(context.Background(), domain.ConvertRequest{FromUnitID: 404, ToUnitID: 1, Quantity: 1})
	if !errors.Is(err, unitconv.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestConvertQuantityRejectsNaN(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ConvertQuantity(context.Background(), domain.ConvertRequest{FromUnitID: 1, ToUnitID: 2, Quantity: math.NaN()})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConvertQuantityUsesInactiveUnits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BulkUnits(ctx, domain.UnitBulkRequest{Action: "deactivate", UnitIDs: []int64{2}}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	resp, err := svc.ConvertQuantity(ctx, domain.ConvertRequest{FromUnitID: 2, ToUnitID: 1, Quantity: 1})
	if err != nil {
		t.Fatalf("convert through inactive unit: %v", err)
	}
	if resp.Result != 12 {
		t.Fatalf("expected 12, got %v", resp.Result)
	}
}

func TestCreateUnitValidatesDefinition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "pack", Name: "Pack", BaseUnitID: ptr(int64(1)), Operator: "%", OperationValue: ptr(6.0)})
	if !errors.Is(err, unitconv.ErrInvalidUnitDefinition) {
		t.Fatalf("expected ErrInvalidUnitDefinition for bad operator, got %v", err)
	}

	_, err = svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "pack", Name: "Pack", BaseUnitID: ptr(int64(1)), Operator: "*"})
	if !errors.Is(err, unitconv.ErrInvalidUnitDefinition) {
		t.Fatalf("expected ErrInvalidUnitDefinition for missing operand, got %v", err)
	}

	_, err = svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "pack", Name: "Pack", BaseUnitID: ptr(int64(99)), Operator: "*", OperationValue: ptr(6.0)})
	if !errors.Is(err, unitconv.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound for missing base, got %v", err)
	}

	_, err = svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: " ", Name: "Pack"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank code, got %v", err)
	}

	created, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: " pack ", Name: "Pack", BaseUnitID: ptr(int64(1)), Operator: "*", OperationValue: ptr(6.0)})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if created.Code != "pack" || !created.Active {
		t.Fatalf("unexpected created unit: %+v", created)
	}
}

func TestCreateUnitRejectsDuplicateCode(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateUnit(context.Background(), domain.UnitCreateRequest{Code: "box", Name: "Another box"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateUnitRejectsCycle(t *testing.T) {
	svc := newTestService(t)

	// pc becomes derived from carton, which already resolves through pc.
	_, err := svc.UpdateUnit(context.Background(), 1, domain.UnitUpdateRequest{
		BaseUnitID:     ptr(int64(4)),
		Operator:       ptr("*"),
		OperationValue: ptr(2.0),
	})
	if !errors.Is(err, unitconv.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	_, err = svc.UpdateUnit(context.Background(), 2, domain.UnitUpdateRequest{BaseUnitID: ptr(int64(2))})
	if !errors.Is(err, unitconv.ErrInvalidUnitDefinition) {
		t.Fatalf("expected self reference to be invalid, got %v", err)
	}
}

func TestUpdateUnitRejectsOverlongChain(t *testing.T) {
	repo := memory.New()
	svc := New(repo, nil, nil, Options{MaxDepth: 2})
	ctx := context.Background()

	root, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "u0", Name: "U0"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	one, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "u1", Name: "U1", BaseUnitID: &root.ID, Operator: "*", OperationValue: ptr(2.0)})
	if err != nil {
		t.Fatalf("create u1: %v", err)
	}
	two, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "u2", Name: "U2", BaseUnitID: &one.ID, Operator: "*", OperationValue: ptr(2.0)})
	if err != nil {
		t.Fatalf("create u2: %v", err)
	}
	_, err = svc.CreateUnit(ctx, domain.UnitCreateRequest{Code: "u3", Name: "U3", BaseUnitID: &two.ID, Operator: "*", OperationValue: ptr(2.0)})
	if !errors.Is(err, unitconv.ErrChainTooLong) {
		t.Fatalf("expected ErrChainTooLong, got %v", err)
	}
}

func TestUpdateUnitClearsBaseAndInvalidatesCache(t *testing.T) {
	unitCache := newMapUnitCache()
	svc := New(memory.NewSeeded(nil), unitCache, nil, Options{})
	ctx := context.Background()

	if _, err := svc.ConvertQuantity(ctx, domain.ConvertRequest{FromUnitID: 2, ToUnitID: 1, Quantity: 1}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, ok, _ := unitCache.Get(ctx, 2); !ok {
		t.Fatalf("expected box to be cached after conversion")
	}

	updated, err := svc.UpdateUnit(ctx, 2, domain.UnitUpdateRequest{ClearBaseUnit: true})
	if err != nil {
		t.Fatalf("update unit: %v", err)
	}
	if !updated.IsBase() || updated.Operator != "" || updated.OperationValue != nil {
		t.Fatalf("expected box to become a base unit, got %+v", updated)
	}
	if _, ok, _ := unitCache.Get(ctx, 2); ok {
		t.Fatalf("expected box to be evicted from cache")
	}

	_, err = svc.ConvertQuantity(ctx, domain.ConvertRequest{FromUnitID: 2, ToUnitID: 1, Quantity: 1})
	if !errors.Is(err, unitconv.ErrIncompatibleUnits) {
		t.Fatalf("expected stale chain to be gone, got %v", err)
	}
}

func TestBulkDestroyRefusesUnitInUse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.BulkUnits(ctx, domain.UnitBulkRequest{Action: "destroy", UnitIDs: []int64{2}})
	if !errors.Is(err, ErrUnitInUse) {
		t.Fatalf("expected ErrUnitInUse while carton depends on box, got %v", err)
	}

	resp, err := svc.BulkUnits(ctx, domain.UnitBulkRequest{Action: "destroy", UnitIDs: []int64{2, 4, 4}})
	if err != nil {
		t.Fatalf("destroy with dependent in batch: %v", err)
	}
	if resp.Affected != 2 || len(resp.UnitIDs) != 2 {
		t.Fatalf("unexpected bulk response: %+v", resp)
	}
}

func TestDeleteUnitAllowsInactiveDependents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BulkUnits(ctx, domain.UnitBulkRequest{Action: "deactivate", UnitIDs: []int64{6}}); err != nil {
		t.Fatalf("deactivate kg: %v", err)
	}
	if err := svc.DeleteUnit(ctx, 5); err != nil {
		t.Fatalf("delete g: %v", err)
	}

	_, err := svc.ConvertQuantity(ctx, domain.ConvertRequest{FromUnitID: 6, ToUnitID: 8, Quantity: 3})
	if !errors.Is(err, unitconv.ErrUnitNotFound) {
		t.Fatalf("expected orphaned kg to fail with ErrUnitNotFound, got %v", err)
	}

	resp, err := svc.ConvertQuantity(ctx, domain.ConvertRequest{FromUnitID: 6, ToUnitID: 6, Quantity: 3})
	if err != nil {
		t.Fatalf("expected identity conversion of orphaned kg to succeed, got %v", err)
	}
	if resp.Result != 3 || resp.BaseUnit != "" || resp.BaseQuantity != nil {
		t.Fatalf("expected identity result without base fields, got %+v", resp)
	}
	if _, _, err := svc.ResolveToBase(ctx, 6, 3); !errors.Is(err, unitconv.ErrUnitNotFound) {
		t.Fatalf("expected base resolution of orphaned kg to fail, got %v", err)
	}

	if err := svc.DeleteUnit(ctx, 5); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBulkUnitsRejectsUnknownAction(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.BulkUnits(context.Background(), domain.UnitBulkRequest{Action: "archive", UnitIDs: []int64{1}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = svc.BulkUnits(context.Background(), domain.UnitBulkRequest{Action: "activate"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty ids, got %v", err)
	}
}

func TestSeedPermissionsIsIdempotent(t *testing.T) {
	svc := New(memory.New(), nil, nil, Options{})
	ctx := context.Background()

	first, err := svc.SeedPermissions(ctx, false)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	want := len(permission.AllPermissions())
	if first.PermissionsInserted != want || first.MappingsInserted != want {
		t.Fatalf("expected %d inserts, got %+v", want, first)
	}
	if first.Role != permission.AdminRole {
		t.Fatalf("expected admin role, got %s", first.Role)
	}

	second, err := svc.SeedPermissions(ctx, false)
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if second.PermissionsInserted != 0 || second.MappingsInserted != 0 {
		t.Fatalf("expected re-seed to be a no-op, got %+v", second)
	}

	basic, err := svc.SeedPermissions(ctx, true)
	if err != nil {
		t.Fatalf("multi-tenant seed: %v", err)
	}
	if basic.Role != permission.BasicRole || basic.MappingsInserted != len(permission.BasicMappings()) {
		t.Fatalf("unexpected multi-tenant seed result: %+v", basic)
	}

	granted, err := svc.Authorize(ctx, permission.BasicRole, "sales-add")
	if err != nil || !granted {
		t.Fatalf("expected Staff to hold sales-add, got %v %v", granted, err)
	}
	granted, err = svc.Authorize(ctx, permission.BasicRole, "role-edit")
	if err != nil || granted {
		t.Fatalf("expected Staff to lack role-edit, got %v %v", granted, err)
	}
}

func TestSeedPermissionsMultiTenantGrantsAdmin(t *testing.T) {
	svc := New(memory.New(), nil, nil, Options{})
	ctx := context.Background()

	resp, err := svc.SeedPermissions(ctx, true)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	want := len(permission.AllPermissions()) + len(permission.BasicMappings())
	if resp.Role != permission.BasicRole || resp.MappingsInserted != want {
		t.Fatalf("expected %d mappings for %s, got %+v", want, permission.BasicRole, resp)
	}

	for _, name := range []string{"role-edit", "units-add", "role-index"} {
		granted, err := svc.Authorize(ctx, permission.AdminRole, name)
		if err != nil || !granted {
			t.Fatalf("expected Admin to hold %s, got %v %v", name, granted, err)
		}
	}
	granted, err := svc.Authorize(ctx, permission.BasicRole, "sales-add")
	if err != nil || !granted {
		t.Fatalf("expected Staff to hold sales-add, got %v %v", granted, err)
	}
}

func TestSeedPermissionsUsesConfiguredGuard(t *testing.T) {
	repo := memory.New()
	svc := New(repo, nil, nil, Options{Guard: "api"})
	ctx := context.Background()

	if _, err := svc.SeedPermissions(ctx, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	web, err := repo.ListPermissions(ctx, "web")
	if err != nil {
		t.Fatalf("list web permissions: %v", err)
	}
	if len(web) != 0 {
		t.Fatalf("expected no web permissions, got %d", len(web))
	}
	perms, err := svc.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	if len(perms) != len(permission.AllPermissions()) {
		t.Fatalf("expected full catalog under api guard, got %d", len(perms))
	}
}

func TestListPermissionsCarriesModule(t *testing.T) {
	svc := newTestService(t)

	perms, err := svc.ListPermissions(context.Background())
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	for _, p := range perms {
		if p.Module == "" {
			t.Fatalf("permission %s has no module", p.Name)
		}
		if p.Name == "sale-payment-create" && p.Module != "sales" {
			t.Fatalf("expected sales module, got %s", p.Module)
		}
	}

	groups, err := svc.GroupedPermissions(context.Background())
	if err != nil {
		t.Fatalf("grouped permissions: %v", err)
	}
	if len(groups) == 0 || groups[len(groups)-1].Module != permission.ModuleReports {
		t.Fatalf("expected reports to close the catalog grouping, got %+v", groups)
	}
}

func TestSetRolePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, domain.RoleCreateRequest{Name: "Warehouse"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if role.GuardName != domain.DefaultGuard {
		t.Fatalf("expected default guard, got %s", role.GuardName)
	}
	if _, err := svc.CreateRole(ctx, domain.RoleCreateRequest{Name: "Warehouse"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate role, got %v", err)
	}

	_, err = svc.SetRolePermissions(ctx, role.ID, []string{"units-index", "not-a-permission"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown permission, got %v", err)
	}

	resp, err := svc.SetRolePermissions(ctx, role.ID, []string{"units-index", "units-index", "transfers-add"})
	if err != nil {
		t.Fatalf("set role permissions: %v", err)
	}
	if len(resp.Permissions) != 2 {
		t.Fatalf("expected 2 permissions, got %+v", resp.Permissions)
	}
	for _, p := range resp.Permissions {
		if p.Module == "" {
			t.Fatalf("expected module on %s", p.Name)
		}
	}

	exists, err := svc.RoleExists(ctx, "Warehouse")
	if err != nil || !exists {
		t.Fatalf("expected Warehouse to exist, got %v %v", exists, err)
	}
}

func TestRequireChecksActorPermission(t *testing.T) {
	svc := newTestService(t)

	if err := svc.Require(context.Background(), "units-index"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without actor, got %v", err)
	}

	admin := WithActor(context.Background(), domain.Actor{Username: "admin", Role: permission.AdminRole})
	if err := svc.Require(admin, "units-delete"); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}

	staff := WithActor(context.Background(), domain.Actor{Username: "staff", Role: permission.BasicRole})
	if err := svc.Require(staff, "units-delete"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff, got %v", err)
	}
}
