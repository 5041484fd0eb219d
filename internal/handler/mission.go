package handler

import (
	"log/slog"
	"net/http"

	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/mission"
	"github.com/moneyseed/moneyseed/internal/model"
)

type MissionHandler struct {
	missions *mission.Service
	access   Access
	clock    kst.Clock
	logger   *slog.Logger
}

func NewMissionHandler(missions *mission.Service, a Access, clock kst.Clock, logger *slog.Logger) *MissionHandler {
	if clock == nil {
		clock = kst.SystemClock
	}
	return &MissionHandler{missions: missions, access: a, clock: clock, logger: logger}
}

// load fetches a mission the caller may see.
func (h *MissionHandler) load(r *http.Request) (*model.MissionInstance, error) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	m, err := h.missions.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := h.access.check(r.Context(), m.UserID); err != nil {
		return nil, err
	}
	return m, nil
}

// List handles GET /api/missions?date=&user_id=
func (h *MissionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.access.check(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = kst.Today(h.clock)
	}

	missions, err := h.missions.ListForDay(r.Context(), userID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if missions == nil {
		missions = []model.MissionInstance{}
	}
	writeJSON(w, http.StatusOK, missions)
}

// Create handles POST /api/missions. The date defaults to today.
func (h *MissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req mission.NewInstance
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.access.child(r.Context(), req.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Date == "" {
		req.Date = kst.Today(h.clock)
	}

	m, err := h.missions.CreateInstance(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Update handles PATCH /api/missions/{id}
func (h *MissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var patch mission.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.missions.Update(r.Context(), m.ID, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/missions/{id}
func (h *MissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.missions.Delete(r.Context(), m.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/missions/{id}/complete
func (h *MissionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	m, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.missions.Complete(r.Context(), m.ID)
	if err != nil {
		// The mission is marked done even when the streak step fails.
		if res != nil {
			h.logger.Error("streak update after completion", "mission_id", m.ID, "error", err)
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Uncomplete handles POST /api/missions/{id}/uncomplete
func (h *MissionHandler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	m, err := h.load(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	updated, err := h.missions.Uncomplete(r.Context(), m.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
