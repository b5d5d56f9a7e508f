package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/httpresp"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type NotificationLister interface {
	List(ctx context.Context, owner models.Owner, limit int) ([]models.Notification, error)
}

type ReadMarker interface {
	MarkRead(ctx context.Context, id int64) error
}

type NotificationHandler struct {
	list NotificationLister
	read ReadMarker
}

func NewNotificationHandler(list NotificationLister, read ReadMarker) *NotificationHandler {
	return &NotificationHandler{list: list, read: read}
}

func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.list.List(c.Request.Context(), middleware.OwnerFrom(c), limitQuery(c, 50, 200))
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.List(c, items)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.NotFound(c, httperr.CodeNotFound, "Record not found.")
		return
	}
	if err := h.read.MarkRead(c.Request.Context(), id); err != nil {
		httperr.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
