package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"formgate.dev/internal/audit"
	"formgate.dev/internal/intake"
)

type contactFormRequest struct {
	Tenant  string `json:"tenant"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type updateSubmissionRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type submissionResponse struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Kind         string     `json:"kind"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Message      string     `json:"message,omitempty"`
	Position     string     `json:"position,omitempty"`
	HasResume    bool       `json:"has_resume"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	IsAgencyCopy bool       `json:"is_agency_copy"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

func toSubmissionResponse(s intake.Submission) submissionResponse {
	return submissionResponse{
		ID:           s.ID,
		TenantID:     s.TenantID,
		Kind:         string(s.Kind),
		Name:         s.Name,
		Email:        s.Email,
		Phone:        s.Phone,
		Message:      s.Message,
		Position:     s.Position,
		HasResume:    s.ResumeKey != "",
		Status:       string(s.Status),
		Notes:        s.Notes,
		IsAgencyCopy: s.IsAgencyCopy,
		CreatedAt:    s.CreatedAt,
		DeletedAt:    s.DeletedAt,
	}
}

func (a *API) handleContactForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req contactFormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := a.intake.AcceptContact(r.Context(), req.Tenant, intake.ContactForm{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     sub.ID,
		"status": string(sub.Status),
	})
}

func (a *API) handleApplicationForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	form := intake.ApplicationForm{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Phone:    r.FormValue("phone"),
		Position: r.FormValue("position"),
		Message:  r.FormValue("message"),
	}
	if file, header, err := r.FormFile("resume"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "could not read resume")
			return
		}
		form.Resume = data
		form.ResumeFilename = header.Filename
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, http.StatusBadRequest, "invalid resume upload")
		return
	}
	sub, err := a.intake.AcceptApplication(r.Context(), r.FormValue("tenant"), form)
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     sub.ID,
		"status": string(sub.Status),
	})
}

func (a *API) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	query := intake.ListQuery{
		Tenant:         strings.TrimSpace(q.Get("tenant")),
		Kind:           strings.TrimSpace(q.Get("kind")),
		AgencyCopies:   q.Get("agency_copies") == "true",
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	subs, err := a.intake.List(r.Context(), principalFrom(r), query)
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	resp := make([]submissionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubmissionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (a *API) handleSubmissionResource(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/submissions/"), "/")
	if raw == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(raw, "/")
	if len(parts) == 2 && parts[1] == "resume" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.downloadResume(w, r, parts[0])
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		sub, err := a.intake.Get(r.Context(), principalFrom(r), id)
		if err != nil {
			handleIntakeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
	case http.MethodPatch:
		a.updateSubmission(w, r, id)
	case http.MethodDelete:
		if err := a.intake.Delete(r.Context(), principalFrom(r), id); err != nil {
			handleIntakeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "submission.delete", map[string]any{
			"submission_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateSubmission(w http.ResponseWriter, r *http.Request, id string) {
	var req updateSubmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := intake.Update{Notes: req.Notes}
	if req.Status != nil {
		status := intake.Status(*req.Status)
		upd.Status = &status
	}
	sub, err := a.intake.Update(r.Context(), principalFrom(r), id, upd)
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "submission.update", map[string]any{
		"submission_id": id,
		"status":        string(sub.Status),
	})
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (a *API) downloadResume(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := a.intake.Get(r.Context(), principalFrom(r), id)
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	data, err := a.intake.Resume(r.Context(), principalFrom(r), id)
	if err != nil {
		handleIntakeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(sub.ResumeKey)+`"`)
	_, _ = w.Write(data)
}
