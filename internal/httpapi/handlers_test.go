package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/service"
	"tokoerp/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. Both the
// admin and the basic role are seeded.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(nil)
	svc := service.New(repo, nil, nil, service.Options{})
	for _, multiTenant := range []bool{false, true} {
		if _, err := svc.SeedPermissions(context.Background(), multiTenant); err != nil {
			t.Fatalf("seed permissions: %v", err)
		}
	}
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", false, nil)
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	return login(t, api, "admin", "admin123")
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleUnits_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/units", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleUnits_ListAndCreate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/units?active=yes", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var listed map[string][]domain.Unit
	decodeBody(t, rec, &listed)
	if len(listed["units"]) == 0 {
		t.Fatalf("expected seeded units, got %v", listed)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/units", token, map[string]any{
		"code":            "pack6",
		"name":            "Pack of six",
		"base_unit":       1,
		"operator":        "*",
		"operation_value": 6,
		"is_active":       "off",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created map[string]domain.Unit
	decodeBody(t, rec, &created)
	if created["unit"].Active || created["unit"].Code != "pack6" {
		t.Fatalf("unexpected created unit: %+v", created["unit"])
	}
}

func TestHandleUnits_RejectsBadLooseBool(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/units", token, map[string]any{
		"code":      "crate",
		"name":      "Crate",
		"is_active": "maybe",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleUnitConvert(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/units/convert", token, domain.ConvertRequest{FromUnitID: 2, ToUnitID: 1, Quantity: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.ConvertResponse
	decodeBody(t, rec, &resp)
	if resp.Result != 36 || resp.BaseUnit != "pc" {
		t.Fatalf("expected 3 box = 36 pc, got %+v", resp)
	}
}

func TestHandleUnitConvert_IncompatibleIs422(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/units/convert", token, domain.ConvertRequest{FromUnitID: 6, ToUnitID: 1, Quantity: 1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "Cannot convert between incompatible units" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestHandleUnitBase(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/units/6/base?quantity=2.5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		BaseUnit     domain.Unit `json:"base_unit"`
		BaseQuantity float64     `json:"base_quantity"`
	}
	decodeBody(t, rec, &body)
	if body.BaseUnit.Code != "g" || body.BaseQuantity != 2500 {
		t.Fatalf("expected 2.5 kg = 2500 g, got %+v", body)
	}
}

func TestHandleUnitDelete_InUseIs409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodDelete, "/api/v1/units/1", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/units/999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleUnitBulk(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/units/bulk", token, domain.UnitBulkRequest{Action: "deactivate", UnitIDs: []int64{7, 8}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.UnitBulkResponse
	decodeBody(t, rec, &resp)
	if resp.Affected != 2 {
		t.Fatalf("expected 2 affected units, got %+v", resp)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/units/bulk", token, domain.UnitBulkRequest{Action: "destroy", UnitIDs: []int64{7}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected inactive dependent not to block delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleUnitPatch_RejectsCycle(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPatch, "/api/v1/units/1", token, map[string]any{
		"base_unit":       2,
		"operator":        "/",
		"operation_value": 12,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStaffCannotManageRoles(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/roles", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/api/v1/units/convert", token, domain.ConvertRequest{FromUnitID: 2, ToUnitID: 1, Quantity: 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected staff without units-index to get 403, got %d", rec.Code)
	}
}

func TestHandlePermissions_Grouped(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/permissions?grouped=on", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string][]domain.PermissionGroup
	decodeBody(t, rec, &body)
	groups := body["groups"]
	if len(groups) == 0 || groups[0].Module != "returns" {
		t.Fatalf("expected groups in module order, got %+v", groups)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/permissions", token, nil)
	var flat map[string][]domain.Permission
	decodeBody(t, rec, &flat)
	for _, p := range flat["permissions"] {
		if p.Name == "account-index" && p.Module != "accounts" {
			t.Fatalf("expected accounts module for account-index, got %q", p.Module)
		}
	}
}

func TestMultiTenantSeedLeavesAdminUsable(t *testing.T) {
	repo := memory.NewSeeded(nil)
	svc := service.New(repo, nil, nil, service.Options{})
	if _, err := svc.SeedPermissions(context.Background(), true); err != nil {
		t.Fatalf("seed permissions: %v", err)
	}
	api := New(svc, NewAuthManager("test-secret-key", time.Hour, repo), "*", true, nil)
	adminToken := loginAsAdmin(t, api)
	staffToken := login(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/units", adminToken, map[string]any{
		"code": "pack", "name": "Pack", "base_unit": 1, "operator": "*", "operation_value": 6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create unit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, api, http.MethodGet, "/api/v1/roles", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin list roles: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/permissions/seed", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin reseed: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/permissions/seed", staffToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("staff reseed: expected 403, got %d", rec.Code)
	}
}

func TestHandlePermissionSeed_IsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/permissions/seed", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.SeedResponse
	decodeBody(t, rec, &resp)
	if resp.PermissionsInserted != 0 || resp.MappingsInserted != 0 {
		t.Fatalf("expected re-seed to insert nothing, got %+v", resp)
	}
}

func TestHandleRolePermissions(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/roles", token, domain.RoleCreateRequest{Name: "Gudang"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created map[string]domain.Role
	decodeBody(t, rec, &created)
	roleID := created["role"].ID

	path := "/api/v1/roles/" + jsonNumber(roleID) + "/permissions"
	rec = doJSON(t, api, http.MethodPut, path, token, domain.RolePermissionsRequest{Permissions: []string{"units-index", "transfers-index"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, path, token, nil)
	var resp domain.RolePermissionsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Permissions) != 2 {
		t.Fatalf("expected 2 role permissions, got %+v", resp.Permissions)
	}

	rec = doJSON(t, api, http.MethodPut, path, token, domain.RolePermissionsRequest{Permissions: []string{"nope"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown permission, got %d", rec.Code)
	}
}

func TestHandleUsers_CreateAndLogin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{Username: "kasir02", Password: "pass1234", Role: "Staff"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	login(t, api, "kasir02", "pass1234")

	rec = doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{Username: "kasir03", Password: "pass1234", Role: "Ghost"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{Username: "kasir02", Password: "pass1234"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %d", rec.Code)
	}
}

func jsonNumber(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
