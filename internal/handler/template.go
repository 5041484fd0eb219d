package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/mission"
	"github.com/moneyseed/moneyseed/internal/model"
)

// maxPresetBytes caps the size of an uploaded preset catalog.
const maxPresetBytes = 1 << 20

type TemplateHandler struct {
	missions *mission.Service
	access   Access
	clock    kst.Clock
	logger   *slog.Logger
}

func NewTemplateHandler(missions *mission.Service, a Access, clock kst.Clock, logger *slog.Logger) *TemplateHandler {
	if clock == nil {
		clock = kst.SystemClock
	}
	return &TemplateHandler{missions: missions, access: a, clock: clock, logger: logger}
}

// owned fetches a template belonging to the caller. Templates of other
// parents are reported as missing.
func (h *TemplateHandler) owned(r *http.Request) (*model.MissionTemplate, error) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	t, err := h.missions.GetTemplate(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if t.OwnerUserID != auth.UserID(r.Context()) {
		return nil, errs.NotFound("template", id)
	}
	return t, nil
}

func (h *TemplateHandler) checkAssignee(r *http.Request, assignee *int64) error {
	if assignee == nil {
		return nil
	}
	return h.access.child(r.Context(), *assignee)
}

// List handles GET /api/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.missions.ListTemplates(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if templates == nil {
		templates = []model.MissionTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// Create handles POST /api/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in mission.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkAssignee(r, in.AssigneeUserID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	t, err := h.missions.CreateTemplate(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Update handles PUT /api/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in mission.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.checkAssignee(r, in.AssigneeUserID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.missions.UpdateTemplate(r.Context(), t.ID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.owned(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	hard, err := h.missions.DeleteTemplate(r.Context(), t.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": hard, "disabled": !hard})
}

// Import handles POST /api/templates/import?assignee_id= with a YAML body.
func (h *TemplateHandler) Import(w http.ResponseWriter, r *http.Request) {
	var assignee *int64
	if raw := r.URL.Query().Get("assignee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, h.logger, errs.Invalid("assignee_id", "must be a positive integer"))
			return
		}
		assignee = &id
	}
	if err := h.checkAssignee(r, assignee); err != nil {
		writeError(w, h.logger, err)
		return
	}

	presets, err := mission.ParsePresets(http.MaxBytesReader(w, r.Body, maxPresetBytes))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	templates, err := h.missions.ImportPresets(r.Context(), auth.UserID(r.Context()), assignee, presets)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("presets imported", "owner_id", auth.UserID(r.Context()), "count", len(templates))
	writeJSON(w, http.StatusCreated, templates)
}

// Fire handles POST /api/templates/fire?date=, defaulting to today.
func (h *TemplateHandler) Fire(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = kst.Today(h.clock)
	}
	created, err := h.missions.FireTemplates(r.Context(), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("templates fired", "date", date, "created", len(created))
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"created": len(created),
		"message": fmt.Sprintf("%d missions created", len(created)),
	})
}
