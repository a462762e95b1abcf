package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/happenings/internal/backup"
	"github.com/dukerupert/happenings/internal/model"
)

type backupSource interface {
	Status() backup.Status
	List(limit int) ([]model.Backup, error)
}

type BackupHandler struct {
	backups backupSource
	logger  *slog.Logger
}

func NewBackupHandler(backups backupSource, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{backups: backups, logger: logger}
}

// List reports the manager state and the most recent backup records.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	list, err := h.backups.List(limit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if list == nil {
		list = []model.Backup{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.backups.Status(),
		"backups": list,
	})
}
