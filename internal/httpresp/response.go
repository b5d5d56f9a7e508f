package httpresp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func OK(c *gin.Context, data any) {
	c.JSON(200, data)
}

func List[T any](c *gin.Context, data []T) {
	if data == nil {
		data = []T{}
	}
	c.JSON(200, ListResponse[T]{
		Data:  data,
		Total: len(data),
	})
}

// Outcome writes a UI write result: 200 applied, 202 queued for the next
// pass, 409 when the remote record replaced the local change.
func Outcome[T any](c *gin.Context, out syncengine.Outcome[T]) {
	status := http.StatusOK
	switch out.Kind {
	case syncengine.Queued:
		status = http.StatusAccepted
	case syncengine.Rejected:
		status = http.StatusConflict
	}
	c.JSON(status, out)
}
