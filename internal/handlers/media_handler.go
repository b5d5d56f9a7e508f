package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type ImageCache interface {
	Path(src string) (string, bool)
	Fetch(ctx context.Context, src string) (string, error)
}

// OwnerAppointments lists the cached appointments whose doctor images may
// be downloaded on demand.
type OwnerAppointments interface {
	QueryByOwner(ctx context.Context, owner models.Owner) ([]models.Appointment, error)
}

type MediaHandler struct {
	cache ImageCache
	appts OwnerAppointments
}

func NewMediaHandler(cache ImageCache, appts OwnerAppointments) *MediaHandler {
	return &MediaHandler{cache: cache, appts: appts}
}

// Get serves a cached doctor image. A miss is downloaded only when src is
// the image of a doctor on one of the owner's appointments.
func (h *MediaHandler) Get(c *gin.Context) {
	src := c.Query("src")
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "src must be an http(s) url.")
		return
	}

	path, ok := h.cache.Path(src)
	if !ok {
		known, err := h.known(c.Request.Context(), middleware.OwnerFrom(c), src)
		if err != nil {
			httperr.FromError(c, err)
			return
		}
		if !known {
			httperr.NotFound(c, "media_unavailable", "Image not cached.")
			return
		}

		path, err = h.cache.Fetch(c.Request.Context(), src)
		if err != nil {
			httperr.NotFound(c, "media_unavailable", "Image not cached and not reachable.")
			return
		}
	}

	c.Header("Content-Type", "image/webp")
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(path)
}

func (h *MediaHandler) known(ctx context.Context, owner models.Owner, src string) (bool, error) {
	apps, err := h.appts.QueryByOwner(ctx, owner)
	if err != nil {
		return false, err
	}
	for _, ap := range apps {
		if ap.DoctorImage == src {
			return true, nil
		}
	}
	return false, nil
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
