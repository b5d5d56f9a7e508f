package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/dto"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/httpresp"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	ucAppointment "github.com/BruksfildServices01/clinic-sync/internal/usecase/appointment"
	ucPrescription "github.com/BruksfildServices01/clinic-sync/internal/usecase/prescription"
)

type Watcher interface {
	Watch(ctx context.Context, owner models.Owner) <-chan []models.Appointment
}

// ======================================================
// HANDLER
// ======================================================

type AppointmentHandler struct {
	list     *ucAppointment.ListAppointments
	get      *ucAppointment.GetAppointment
	cancel   *ucAppointment.CancelAppointment
	confirm  *ucAppointment.ConfirmAppointment
	reject   *ucAppointment.RejectAppointment
	complete *ucAppointment.CompleteAppointment

	prescription *ucPrescription.GetPrescription
	watcher      Watcher

	keepAlive time.Duration
}

func NewAppointmentHandler(
	list *ucAppointment.ListAppointments,
	get *ucAppointment.GetAppointment,
	cancel *ucAppointment.CancelAppointment,
	confirm *ucAppointment.ConfirmAppointment,
	reject *ucAppointment.RejectAppointment,
	complete *ucAppointment.CompleteAppointment,
	prescription *ucPrescription.GetPrescription,
	watcher Watcher,
) *AppointmentHandler {
	return &AppointmentHandler{
		list:         list,
		get:          get,
		cancel:       cancel,
		confirm:      confirm,
		reject:       reject,
		complete:     complete,
		prescription: prescription,
		watcher:      watcher,
		keepAlive:    25 * time.Second,
	}
}

// ======================================================
// REQUESTS
// ======================================================

type RejectRequest struct {
	Reason string `json:"reason"`
}

// ======================================================
// READS
// ======================================================

func (h *AppointmentHandler) List(c *gin.Context) {
	view, err := h.list.Execute(c.Request.Context(), c.Query("filter"))
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.OK(c, dto.FromView(view))
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.NotFound(c, httperr.CodeNotFound, "Record not found.")
		return
	}
	ap, err := h.get.Execute(c.Request.Context(), id)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.OK(c, ap)
}

func (h *AppointmentHandler) Prescription(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.NotFound(c, httperr.CodeNotFound, "Record not found.")
		return
	}
	p, err := h.prescription.Execute(c.Request.Context(), id)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.OK(c, p)
}

// Stream sends the owner's appointments as server-sent events, once on
// connect and again after every local change.
func (h *AppointmentHandler) Stream(c *gin.Context) {
	owner := middleware.OwnerFrom(c)
	ch := h.watcher.Watch(c.Request.Context(), owner)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case apps, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("appointments", apps)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ======================================================
// WRITES
// ======================================================

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid appointment id.")
		return
	}
	out, err := h.cancel.Execute(c.Request.Context(), id)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.Outcome(c, out)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid appointment id.")
		return
	}
	out, err := h.confirm.Execute(c.Request.Context(), id)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.Outcome(c, out)
}

func (h *AppointmentHandler) Reject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid appointment id.")
		return
	}

	// the reason is optional; an empty body is fine
	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid request body.")
			return
		}
	}

	out, err := h.reject.Execute(c.Request.Context(), id, req.Reason)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.Outcome(c, out)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid appointment id.")
		return
	}
	out, err := h.complete.Execute(c.Request.Context(), id)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.Outcome(c, out)
}
