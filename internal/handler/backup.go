package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/moneyseed/moneyseed/internal/backup"
	"github.com/moneyseed/moneyseed/internal/model"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger}
}

// RunNow handles POST /api/admin/backup
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.RunNow(r.Context())
	if errors.Is(err, backup.ErrDisabled) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("manual backup", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "backup failed"})
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// List handles GET /api/admin/backups?limit=
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	backups, err := h.manager.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.manager.Status(),
		"backups": backups,
	})
}
