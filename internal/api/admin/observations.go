package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/api/respond"
)

// RecordObservationRequest is the body of POST /api/v1/observations.
type RecordObservationRequest struct {
	Repo  address.Key `json:"repo" binding:"required"`
	Lines uint64      `json:"lines"`
	Files uint32      `json:"files"`
}

// RecordObservationHandler adds one code observation to the aggregate counters.
// POST /api/v1/observations
func (h *Handlers) RecordObservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req RecordObservationRequest
		if !respond.Bind(c, &req) {
			return
		}

		summary, err := h.engine.RecordObservation(c.Request.Context(), actor, req.Repo, req.Lines, req.Files)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, summary)
	}
}
