package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tokoerp/backend/internal/domain"
)

type unitCreatePayload struct {
	domain.UnitCreateRequest
	IsActive json.RawMessage `json:"is_active,omitempty"`
}

type unitUpdatePayload struct {
	domain.UnitUpdateRequest
	IsActive json.RawMessage `json:"is_active,omitempty"`
}

func (a *API) handleUnits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, "units-index") {
			return
		}
		activeOnly, err := queryBool(r, "active", false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		units, err := a.service.ListUnits(r.Context(), activeOnly)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"units": units})
	case http.MethodPost:
		if !a.allow(w, r, "units-add") {
			return
		}
		var payload unitCreatePayload
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		active, err := looseBoolFromJSON(payload.IsActive)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req := payload.UnitCreateRequest
		req.Active = active

		unit, err := a.service.CreateUnit(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"unit": unit})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUnitActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/units/"), "/")
	switch rest {
	case "bulk":
		a.handleUnitBulk(w, r)
		return
	case "convert":
		a.handleUnitConvert(w, r)
		return
	}

	rawID, action, _ := strings.Cut(rest, "/")
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if action == "base" {
		a.handleUnitBase(w, r, id)
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, errors.New("unknown unit action"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.allow(w, r, "units-index") {
			return
		}
		unit, err := a.service.GetUnit(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unit": unit})
	case http.MethodPatch:
		if !a.allow(w, r, "units-edit") {
			return
		}
		var payload unitUpdatePayload
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		active, err := looseBoolFromJSON(payload.IsActive)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req := payload.UnitUpdateRequest
		req.Active = active

		unit, err := a.service.UpdateUnit(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unit": unit})
	case http.MethodDelete:
		if !a.allow(w, r, "units-delete") {
			return
		}
		if err := a.service.DeleteUnit(r.Context(), id); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUnitBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UnitBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	required := "units-edit"
	if strings.EqualFold(strings.TrimSpace(req.Action), domain.BulkDestroy) {
		required = "units-delete"
	}
	if !a.allow(w, r, required) {
		return
	}

	resp, err := a.service.BulkUnits(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUnitConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, "units-index") {
		return
	}

	var req domain.ConvertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ConvertQuantity(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUnitBase(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.allow(w, r, "units-index") {
		return
	}

	quantity := 1.0
	if raw := strings.TrimSpace(r.URL.Query().Get("quantity")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid quantity"))
			return
		}
		quantity = parsed
	}

	root, baseQty, err := a.service.ResolveToBase(r.Context(), id, quantity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_id":       id,
		"quantity":      quantity,
		"base_unit":     root,
		"base_quantity": baseQty,
	})
}
