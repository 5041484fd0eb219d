package handler

import (
	"log/slog"
	"net/http"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/streak"
	"github.com/shopspring/decimal"
)

type StreakHandler struct {
	streaks  *streak.Service
	verifier *streak.Verifier
	access   Access
	logger   *slog.Logger
}

func NewStreakHandler(streaks *streak.Service, verifier *streak.Verifier, a Access, logger *slog.Logger) *StreakHandler {
	return &StreakHandler{streaks: streaks, verifier: verifier, access: a, logger: logger}
}

// target resolves the {userID} path parameter and checks the caller may see it.
func (h *StreakHandler) target(r *http.Request) (int64, error) {
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		return 0, err
	}
	if err := h.access.check(r.Context(), userID); err != nil {
		return 0, err
	}
	return userID, nil
}

type streakResponse struct {
	Progress *model.UserStreakProgress `json:"progress"`
	Settings *model.StreakSettings     `json:"settings"`
}

// Get handles GET /api/streak/{userID}
func (h *StreakHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	progress, err := h.streaks.GetProgress(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	settings, err := h.streaks.GetSettings(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse{Progress: progress, Settings: settings})
}

type settingsRequest struct {
	StreakTargetDays  *int             `json:"streak_target_days"`
	StreakBonusAmount *decimal.Decimal `json:"streak_bonus_amount"`
	StreakRepeat      *bool            `json:"streak_repeat"`
	StreakEnabled     *bool            `json:"streak_enabled"`
}

// UpdateSettings handles PUT /api/streak/{userID}/settings. Omitted fields
// keep their current value.
func (h *StreakHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	st, err := h.streaks.GetSettings(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.StreakTargetDays != nil {
		st.StreakTargetDays = *req.StreakTargetDays
	}
	if req.StreakBonusAmount != nil {
		st.StreakBonusAmount = *req.StreakBonusAmount
	}
	if req.StreakRepeat != nil {
		st.StreakRepeat = *req.StreakRepeat
	}
	if req.StreakEnabled != nil {
		st.StreakEnabled = *req.StreakEnabled
	}

	saved, err := h.streaks.UpdateSettings(r.Context(), st)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Reset handles POST /api/streak/{userID}/reset
func (h *StreakHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.streaks.ResetStreak(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Claims handles GET /api/streak/{userID}/claims?status=
func (h *StreakHandler) Claims(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := model.RewardStatus(r.URL.Query().Get("status"))
	if status != "" && status != model.RewardPending && status != model.RewardClaimed {
		writeError(w, h.logger, errs.Invalid("status", "must be pending or claimed"))
		return
	}

	claims, err := h.streaks.ListClaims(r.Context(), userID, status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if claims == nil {
		claims = []model.RewardHistory{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// Claim handles POST /api/streak/claims/{id}/claim?user_id=. A parent claims
// on behalf of a child by naming them.
func (h *StreakHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claimID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.access.check(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.streaks.ClaimBonus(r.Context(), userID, claimID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// Verify handles GET /api/streak/{userID}/verify
func (h *StreakHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	report, err := h.verifier.Verify(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
