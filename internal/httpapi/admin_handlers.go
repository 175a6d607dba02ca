package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"formgate.dev/internal/audit"
	"formgate.dev/internal/auth"
)

type createAdminRequest struct {
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Password    string  `json:"password"`
	Role        string  `json:"role"`
	TenantID    *string `json:"tenant_id"`
	NotifyForms string  `json:"notify_forms"`
}

type updateAdminRequest struct {
	Email       *string `json:"email"`
	Name        *string `json:"name"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	TenantID    *string `json:"tenant_id"`
	ClearTenant bool    `json:"clear_tenant"`
	NotifyForms *string `json:"notify_forms"`
	IsActive    *bool   `json:"is_active"`
}

func (a *API) handleAdmins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAdmins(w, r)
	case http.MethodPost:
		a.createAdmin(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listAdmins(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListAdmins(r.Context(), principalFrom(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := auth.CreateAdminParams{
		Email:       req.Email,
		Name:        req.Name,
		Password:    req.Password,
		Role:        auth.Role(req.Role),
		TenantID:    req.TenantID,
		NotifyForms: auth.NotifyPref(req.NotifyForms),
	}
	user, err := a.auth.CreateAdmin(r.Context(), principalFrom(r), params)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.create", map[string]any{
		"target_id": user.ID,
		"email":     user.Email,
		"role":      string(user.Role),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/admins/%d", user.ID))
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleAdminResource(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admins/"), "/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.GetAdmin(r.Context(), principalFrom(r), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	case http.MethodPatch:
		a.updateAdmin(w, r, id)
	case http.MethodDelete:
		if err := a.auth.DeleteAdmin(r.Context(), principalFrom(r), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.delete", map[string]any{
			"target_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateAdmin(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := auth.AdminUpdate{
		Email:       req.Email,
		Name:        req.Name,
		Password:    req.Password,
		TenantID:    req.TenantID,
		ClearTenant: req.ClearTenant,
		IsActive:    req.IsActive,
	}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		upd.Role = &role
	}
	if req.NotifyForms != nil {
		pref := auth.NotifyPref(*req.NotifyForms)
		upd.NotifyForms = &pref
	}
	user, err := a.auth.UpdateAdmin(r.Context(), principalFrom(r), id, upd)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.update", map[string]any{
		"target_id": id,
	})
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
