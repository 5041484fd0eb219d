package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/database"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errs.Invalid("title", "is required"), http.StatusBadRequest},
		{"immutable", errs.ErrImmutableAfterTransfer, http.StatusConflict},
		{"already transferred", errs.ErrAlreadyTransferred, http.StatusConflict},
		{"already claimed", errs.ErrAlreadyClaimed, http.StatusConflict},
		{"not found", errs.NotFound("mission", 7), http.StatusNotFound},
		{"forbidden", fmt.Errorf("user 2: %w", errs.ErrForbidden), http.StatusForbidden},
		{"unavailable", errs.Unavailable("list missions", errors.New("disk I/O error")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, slog.Default(), tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
		})
	}
}

func TestParseIDParamRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/missions/abc", nil)
	if _, err := parseIDParam(req, "id"); !errs.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestQueryUserIDValidation(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/missions?user_id=-3", nil)
	if _, err := queryUserID(req); !errs.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestAccessRules(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bg := context.Background()
	profiles := store.NewProfileStore(db)
	resolver := family.NewResolver(profiles, store.NewFamilyStore(db))
	a := NewAccess(resolver)

	mom, _ := profiles.Create(bg, "Mom", model.RoleParent, "")
	kid, err := resolver.AddChild(bg, mom.ID, "Jisoo")
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	sibling, _ := resolver.AddChild(bg, mom.ID, "Minjun")
	stranger, _ := profiles.Create(bg, "Dad", model.RoleParent, "")

	asMom := auth.WithAuth(bg, auth.AuthContext{UserID: mom.ID, Role: model.RoleParent})
	asKid := auth.WithAuth(bg, auth.AuthContext{UserID: kid.ID, Role: model.RoleChild})
	asStranger := auth.WithAuth(bg, auth.AuthContext{UserID: stranger.ID, Role: model.RoleParent})

	tests := []struct {
		name    string
		ctx     context.Context
		userID  int64
		child   bool
		allowed bool
	}{
		{"self", asKid, kid.ID, false, true},
		{"parent reads child", asMom, kid.ID, false, true},
		{"child reads sibling", asKid, sibling.ID, false, false},
		{"other parent", asStranger, kid.ID, false, false},
		{"parent acts on child", asMom, kid.ID, true, true},
		{"parent acts on self as child", asMom, mom.ID, true, false},
		{"child acts on self as child", asKid, kid.ID, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := a.check
			if tt.child {
				check = a.child
			}
			err := check(tt.ctx, tt.userID)
			if tt.allowed && err != nil {
				t.Errorf("err = %v, want allowed", err)
			}
			if !tt.allowed && !errors.Is(err, errs.ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
		})
	}
}
