package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

type AuthHandler struct {
	profiles *store.ProfileStore
	tokens   *auth.TokenVerifier
	access   Access
	logger   *slog.Logger
}

func NewAuthHandler(profiles *store.ProfileStore, tokens *auth.TokenVerifier, a Access, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{profiles: profiles, tokens: tokens, access: a, logger: logger}
}

type tokenResponse struct {
	Token   string         `json:"token"`
	Profile *model.Profile `json:"profile"`
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, p *model.Profile) {
	token, err := h.tokens.Issue(p.ID, p.Role)
	if err != nil {
		h.logger.Error("issue token", "user_id", p.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to issue token"})
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, Profile: p})
}

type signupRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

// Signup handles POST /api/auth/signup. It creates a parent without a family;
// the family is created when the first child is added.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, h.logger, errs.Invalid("name", "is required"))
		return
	}
	var hash string
	if req.PIN != "" {
		var err error
		if hash, err = auth.HashPIN(req.PIN); err != nil {
			writeError(w, h.logger, errs.Invalid("pin", "must be 4 digits"))
			return
		}
	}

	p, err := h.profiles.Create(r.Context(), req.Name, model.RoleParent, "")
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("create profile", err))
		return
	}
	if hash != "" {
		if err := h.profiles.SetPIN(r.Context(), p.ID, hash); err != nil {
			writeError(w, h.logger, errs.Unavailable("set pin", err))
			return
		}
		p.HasPIN = true
	}
	h.logger.Info("parent signed up", "user_id", p.ID)
	h.issue(w, http.StatusCreated, p)
}

type loginRequest struct {
	UserID int64  `json:"user_id"`
	PIN    string `json:"pin"`
}

// Login handles POST /api/auth/login for parents that have set a PIN.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.profiles.GetByID(r.Context(), req.UserID)
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("get profile", err))
		return
	}
	if p == nil || p.Role != model.RoleParent {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	hash, err := h.profiles.GetPINHash(r.Context(), p.ID)
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("get pin", err))
		return
	}
	if hash == "" || !auth.CheckPIN(hash, req.PIN) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	h.issue(w, http.StatusOK, p)
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p, err := h.profiles.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("get profile", err))
		return
	}
	if p == nil {
		writeError(w, h.logger, errs.NotFound("profile", userID))
		return
	}
	h.issue(w, http.StatusOK, p)
}

// ChildToken handles POST /api/family/members/{id}/token. The token lets a
// child's device act as that child.
func (h *AuthHandler) ChildToken(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.access.child(r.Context(), childID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.profiles.GetByID(r.Context(), childID)
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("get profile", err))
		return
	}
	if p == nil {
		writeError(w, h.logger, errs.NotFound("profile", childID))
		return
	}
	h.logger.Info("child token issued", "parent_id", auth.UserID(r.Context()), "child_id", childID)
	h.issue(w, http.StatusCreated, p)
}
