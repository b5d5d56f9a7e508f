package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/backup"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type Exporter interface {
	Export(ctx context.Context, owner models.Owner) (*backup.Result, error)
}

type BackupHandler struct {
	exporter Exporter
}

// NewBackupHandler accepts a nil exporter when no bucket is configured.
func NewBackupHandler(exporter Exporter) *BackupHandler {
	return &BackupHandler{exporter: exporter}
}

func (h *BackupHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		httperr.Write(c, http.StatusServiceUnavailable, "backup_disabled", "Backup is not configured.")
		return
	}

	res, err := h.exporter.Export(c.Request.Context(), middleware.OwnerFrom(c))
	if err != nil {
		if httperr.IsKind(err, httperr.KindStorageFailure) {
			httperr.FromError(c, err)
			return
		}
		log.Printf("backup export: %v", err)
		httperr.Write(c, http.StatusBadGateway, "backup_failed", "Backup upload failed.")
		return
	}
	c.JSON(http.StatusCreated, res)
}
