package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/moneyseed/moneyseed/internal/allowance"
	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AllowanceHandler struct {
	allowance *allowance.Service
	profiles  *store.ProfileStore
	access    Access
	logger    *slog.Logger
}

func NewAllowanceHandler(svc *allowance.Service, profiles *store.ProfileStore, a Access, logger *slog.Logger) *AllowanceHandler {
	return &AllowanceHandler{allowance: svc, profiles: profiles, access: a, logger: logger}
}

func (h *AllowanceHandler) target(r *http.Request) (int64, error) {
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		return 0, err
	}
	if err := h.access.check(r.Context(), userID); err != nil {
		return 0, err
	}
	return userID, nil
}

// Balance handles GET /api/allowance/{userID}/balance
func (h *AllowanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	b, err := h.allowance.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Transactions handles GET /api/allowance/{userID}/transactions?from=&to=
func (h *AllowanceHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	txns, err := h.allowance.ListTransactions(r.Context(), userID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if txns == nil {
		txns = []model.AllowanceTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// Summary handles GET /api/allowance/{userID}/summary?month=YYYY-MM
func (h *AllowanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	s, err := h.allowance.MonthlySummary(r.Context(), userID, r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// AddExpense handles POST /api/allowance/expenses. Only children record
// their own spending.
func (h *AllowanceHandler) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req allowance.Expense
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	txn, err := h.allowance.AddExpense(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Statement handles GET /api/allowance/{userID}/statement.xlsx?from=&to=
func (h *AllowanceHandler) Statement(w http.ResponseWriter, r *http.Request) {
	userID, err := h.target(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.profiles.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, errs.Unavailable("get profile", err))
		return
	}
	if p == nil {
		writeError(w, h.logger, errs.NotFound("profile", userID))
		return
	}
	q := r.URL.Query()
	txns, err := h.allowance.ListTransactions(r.Context(), userID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := allowance.WriteStatement(&buf, p, txns); err != nil {
		h.logger.Error("write statement", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to build statement"})
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="allowance-%d.xlsx"`, userID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
