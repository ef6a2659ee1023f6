package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tokoerp/backend/internal/domain"
)

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, "role-index") {
		return
	}

	grouped, err := queryBool(r, "grouped", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if grouped {
		groups, err := a.service.GroupedPermissions(r.Context())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
		return
	}

	perms, err := a.service.ListPermissions(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handlePermissionSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, "role-edit") {
		return
	}

	multiTenant, err := queryBool(r, "multi_tenant", a.multiTenant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SeedPermissions(r.Context(), multiTenant)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, "role-index") {
			return
		}
		roles, err := a.service.ListRoles(r.Context())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.allow(w, r, "role-add") {
			return
		}
		var req domain.RoleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		role, err := a.service.CreateRole(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"role": role})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRoleActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/roles/"
	if !strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/permissions") {
		writeError(w, http.StatusNotFound, errors.New("unknown role action"))
		return
	}
	rawID := strings.TrimSuffix(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/permissions")
	roleID, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, "role-index") {
			return
		}
		resp, err := a.service.RolePermissions(r.Context(), roleID)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPut:
		if !a.allow(w, r, "role-edit") {
			return
		}
		var req domain.RolePermissionsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.SetRolePermissions(r.Context(), roleID, req.Permissions)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}
