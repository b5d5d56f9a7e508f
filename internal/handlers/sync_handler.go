package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/httpresp"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type Syncer interface {
	Reconcile(ctx context.Context, owner models.Owner) (*syncengine.PassResult, error)
	Status(ctx context.Context) (syncengine.Status, error)
}

type Journal interface {
	List(ctx context.Context, owner models.Owner, limit int) ([]models.SyncLog, error)
}

type SyncHandler struct {
	engine  Syncer
	journal Journal
}

func NewSyncHandler(engine Syncer, journal Journal) *SyncHandler {
	return &SyncHandler{engine: engine, journal: journal}
}

// Run performs one pass now and waits for it.
func (h *SyncHandler) Run(c *gin.Context) {
	res, err := h.engine.Reconcile(c.Request.Context(), middleware.OwnerFrom(c))
	switch {
	case err == nil:
		httpresp.OK(c, res)
	case errors.Is(err, syncengine.ErrAuthRequired):
		httperr.Unauthorized(c, httperr.KindUnauthorized.String(), "Session expired, sign in again.")
	case httperr.Retryable(err):
		// the pass itself ran; the remote was unreachable
		c.JSON(http.StatusAccepted, res)
	default:
		httperr.FromError(c, err)
	}
}

func (h *SyncHandler) Status(c *gin.Context) {
	st, err := h.engine.Status(c.Request.Context())
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.OK(c, st)
}

func (h *SyncHandler) Journal(c *gin.Context) {
	limit := limitQuery(c, 100, 500)

	logs, err := h.journal.List(c.Request.Context(), middleware.OwnerFrom(c), limit)
	if err != nil {
		httperr.Internal(c, "journal_list_failed", "Could not read the sync journal.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit": limit,
		"total": len(logs),
		"logs":  logs,
	})
}
