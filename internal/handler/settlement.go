package handler

import (
	"log/slog"
	"net/http"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/settlement"
)

type SettlementHandler struct {
	engine   *settlement.Engine
	families *family.Resolver
	logger   *slog.Logger
}

func NewSettlementHandler(engine *settlement.Engine, families *family.Resolver, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{engine: engine, families: families, logger: logger}
}

type pendingResponse struct {
	Missions  []settlement.PendingMission      `json:"missions"`
	Groups    map[string]*settlement.DateGroup `json:"groups"`
	Selection []int64                          `json:"selection"`
	Summary   *settlement.Summary              `json:"summary"`
}

// Pending handles GET /api/settlement/pending
func (h *SettlementHandler) Pending(w http.ResponseWriter, r *http.Request) {
	parentID := auth.UserID(r.Context())
	missions, err := h.engine.GetPendingRewardMissions(r.Context(), parentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	fc, err := h.families.ParentOf(r.Context(), parentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := pendingResponse{
		Missions:  missions,
		Groups:    settlement.GroupMissionsByDate(missions),
		Selection: settlement.GetSmartSelection(missions),
		Summary:   settlement.Summarize(missions, fc.ChildIDs, fc.Names),
	}
	if resp.Missions == nil {
		resp.Missions = []settlement.PendingMission{}
	}
	if resp.Selection == nil {
		resp.Selection = []int64{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	MissionIDs []int64 `json:"mission_ids"`
	Note       string  `json:"note"`
}

// Batch handles POST /api/settlement/batch
func (h *SettlementHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.engine.ProcessBatchReward(r.Context(), auth.UserID(r.Context()), req.MissionIDs, req.Note)
	h.respond(w, res, err)
}

type singleRequest struct {
	Note string `json:"note"`
}

// Single handles POST /api/settlement/missions/{id}. The body is optional.
func (h *SettlementHandler) Single(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req singleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	res, err := h.engine.ProcessSingleReward(r.Context(), auth.UserID(r.Context()), id, req.Note)
	h.respond(w, res, err)
}

// respond reports a settlement result. A batch interrupted by a storage
// failure still returns what it paid so the client can resubmit the rest.
func (h *SettlementHandler) respond(w http.ResponseWriter, res *settlement.Result, err error) {
	if err != nil {
		if res != nil && errs.IsUnavailable(err) {
			h.logger.Error("settlement interrupted", "batch_id", res.BatchID, "processed", res.ProcessedCount, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":  "service temporarily unavailable",
				"result": res,
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
