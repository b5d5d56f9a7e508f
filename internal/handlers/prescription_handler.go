package handlers

import (
	"github.com/gin-gonic/gin"

	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/httpresp"
	ucPrescription "github.com/BruksfildServices01/clinic-sync/internal/usecase/prescription"
)

type PrescriptionHandler struct {
	create *ucPrescription.CreatePrescription
}

func NewPrescriptionHandler(create *ucPrescription.CreatePrescription) *PrescriptionHandler {
	return &PrescriptionHandler{create: create}
}

func (h *PrescriptionHandler) Create(c *gin.Context) {
	var req rxdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, httperr.CodeInvalidRequest, "Invalid prescription.")
		return
	}

	out, err := h.create.Execute(c.Request.Context(), req)
	if err != nil {
		httperr.FromError(c, err)
		return
	}
	httpresp.Outcome(c, out)
}
