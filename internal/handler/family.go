package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/store"
)

type FamilyHandler struct {
	families *family.Resolver
	profiles *store.ProfileStore
	logger   *slog.Logger
}

func NewFamilyHandler(families *family.Resolver, profiles *store.ProfileStore, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: families, profiles: profiles, logger: logger}
}

// Get handles GET /api/family
func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	fc, err := h.families.Resolve(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

type addChildRequest struct {
	Name     string `json:"name"`
	Birthday string `json:"birthday"`
}

// AddChild handles POST /api/family/children
func (h *FamilyHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	var req addChildRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Birthday != "" && !kst.ValidDate(req.Birthday) {
		writeError(w, h.logger, errs.Invalid("birthday", "must be YYYY-MM-DD"))
		return
	}

	child, err := h.families.AddChild(r.Context(), auth.UserID(r.Context()), strings.TrimSpace(req.Name))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Birthday != "" {
		if err := h.profiles.SetBirthday(r.Context(), child.ID, req.Birthday); err != nil {
			h.logger.Warn("set birthday", "user_id", child.ID, "error", err)
		} else {
			child.Birthday = req.Birthday
		}
	}
	h.logger.Info("child added", "parent_id", auth.UserID(r.Context()), "child_id", child.ID)
	writeJSON(w, http.StatusCreated, child)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// SetPIN handles PUT /api/family/members/{id}/pin. Only parent PINs exist; an
// empty PIN clears it.
func (h *FamilyHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	fc, err := h.families.ParentOf(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if id != fc.UserID && !slices.Contains(fc.ParentIDs, id) {
		writeError(w, h.logger, fmt.Errorf("user %d is not a parent of this family: %w", id, errs.ErrForbidden))
		return
	}

	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if req.PIN == "" {
		if err := h.profiles.ClearPIN(r.Context(), id); err != nil {
			writeError(w, h.logger, errs.Unavailable("clear pin", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	hash, err := auth.HashPIN(req.PIN)
	if err != nil {
		writeError(w, h.logger, errs.Invalid("pin", "must be 4 digits"))
		return
	}
	if err := h.profiles.SetPIN(r.Context(), id, hash); err != nil {
		writeError(w, h.logger, errs.Unavailable("set pin", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
