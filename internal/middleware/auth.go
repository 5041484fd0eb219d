package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

// ParentPINHeader carries the parent PIN on parent-only requests.
const ParentPINHeader = "X-Parent-PIN"

// PIN failures allowed per parent before the gate locks.
const (
	pinAttempts = 5
	pinWindow   = 15 * time.Minute
)

// RequireAuth validates the bearer token and populates AuthContext from the
// stored profile. Browsers cannot set headers on websocket upgrades, so a
// token query parameter is accepted as well.
func RequireAuth(verifier *auth.TokenVerifier, profiles *store.ProfileStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			p, err := profiles.GetByID(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "failed to load profile")
				return
			}
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: p.ID, Role: p.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent rejects non-parents. When the parent has set a PIN the
// request must also carry it in X-Parent-PIN; repeated failures lock the
// gate for that parent until the window passes.
func RequireParent(profiles *store.ProfileStore, limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok || ac.Role != model.RoleParent {
				writeError(w, http.StatusForbidden, "parent access required")
				return
			}

			hash, err := profiles.GetPINHash(r.Context(), ac.UserID)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "failed to load PIN")
				return
			}
			if hash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := "pin:" + strconv.FormatInt(ac.UserID, 10)
			if limiter.Exceeded(key, pinAttempts) {
				writeError(w, http.StatusTooManyRequests, "too many PIN attempts")
				return
			}
			if !auth.CheckPIN(hash, r.Header.Get(ParentPINHeader)) {
				limiter.Allow(key, pinAttempts, pinWindow)
				writeError(w, http.StatusForbidden, "parent PIN required")
				return
			}
			limiter.Reset(key)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
