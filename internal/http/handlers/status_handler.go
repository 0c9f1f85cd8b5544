package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/services"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	QueueDepth     int                 `json:"queue_depth"`
	JoinedChannels int64               `json:"joined_channels"`
	Dedup          services.DedupStats `json:"dedup"`
	Pending        map[string]int64    `json:"pending"`
}

// Status handles GET /status: a point-in-time snapshot of the pipeline.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	dedup, err := h.Dedup.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatusFailed, "failed to read dedup stats")
		return
	}
	pending, err := repo.CountPendingByStatus(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatusFailed, "failed to read pending-forward counts")
		return
	}

	ok(c, http.StatusOK, StatusResponse{
		QueueDepth:     h.Forwarder.QueueDepth(),
		JoinedChannels: h.Tracker.JoinedCount(ctx),
		Dedup:          dedup,
		Pending:        pending,
	})
}
