// Package handler exposes the mission, settlement, streak and allowance
// services over JSON HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps a service error onto a status code. Storage failures are
// logged and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, errs.ErrImmutableAfterTransfer), errors.Is(err, errs.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errs.IsUnavailable(err):
		logger.Error("backend unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service temporarily unavailable"})
	default:
		logger.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Invalid("", "invalid JSON")
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// queryUserID reads ?user_id=, defaulting to the caller.
func queryUserID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return auth.UserID(r.Context()), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Invalid("user_id", "must be a positive integer")
	}
	return id, nil
}

// Access decides which users a caller may read or act on: themselves, and
// for a parent every child of the family.
type Access struct {
	families *family.Resolver
}

func NewAccess(families *family.Resolver) Access {
	return Access{families: families}
}

func (a Access) check(ctx context.Context, userID int64) error {
	caller := auth.UserID(ctx)
	if userID == caller {
		return nil
	}
	if !auth.IsParent(ctx) {
		return fmt.Errorf("user %d may not access user %d: %w", caller, userID, errs.ErrForbidden)
	}
	fc, err := a.families.Resolve(ctx, caller)
	if err != nil {
		return err
	}
	if !fc.HasChild(userID) {
		return fmt.Errorf("user %d is not a child of %d: %w", userID, caller, errs.ErrForbidden)
	}
	return nil
}

// child is check narrowed to child profiles of the caller's family.
func (a Access) child(ctx context.Context, userID int64) error {
	fc, err := a.families.Resolve(ctx, auth.UserID(ctx))
	if err != nil {
		return err
	}
	if fc.Role != model.RoleParent || !fc.HasChild(userID) {
		return fmt.Errorf("user %d is not a child of %d: %w", userID, fc.UserID, errs.ErrForbidden)
	}
	return nil
}
