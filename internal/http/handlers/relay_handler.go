// Package handlers provides HTTP handler implementations for the relay's
// operational API: submitting links, inspecting pipeline status, and working
// with the pending-forward ledger.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/linkrelay/go-link-relay/internal/services"
)

// Handler bundles the service dependencies shared by all endpoints.
type Handler struct {
	DB        *gorm.DB
	Forwarder *services.Forwarder
	Dedup     *services.DedupStore
	Tracker   *services.SubscriptionTracker
	Retry     *services.RetryWorker

	// Targets is the configured forward destination list, used when a
	// request does not name its own.
	Targets []string
}

// New constructs a Handler.
func New(db *gorm.DB, fwd *services.Forwarder, dedup *services.DedupStore, tracker *services.SubscriptionTracker, retry *services.RetryWorker, targets []string) *Handler {
	return &Handler{
		DB:        db,
		Forwarder: fwd,
		Dedup:     dedup,
		Tracker:   tracker,
		Retry:     retry,
		Targets:   targets,
	}
}

// EnqueueLinkRequest is the body of POST /links.
type EnqueueLinkRequest struct {
	// Link is a message link, e.g. https://t.me/channel/123.
	Link string `json:"link" binding:"required"`
	// Targets optionally overrides the configured forward destinations.
	Targets []string `json:"targets"`
}

// EnqueueLinkResponse acknowledges an accepted link.
type EnqueueLinkResponse struct {
	Queued     bool `json:"queued"`
	QueueDepth int  `json:"queue_depth"`
}

// EnqueueLink handles POST /links: parse the submitted message link and push
// it onto the forwarding queue.
func (h *Handler) EnqueueLink(c *gin.Context) {
	var req EnqueueLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	targets := req.Targets
	if len(targets) == 0 {
		targets = h.Targets
	}

	err := h.Forwarder.Enqueue(c.Request.Context(), req.Link, targets)
	switch {
	case errors.Is(err, services.ErrInvalidLink):
		fail(c, http.StatusBadRequest, ErrCodeInvalidLink, "not a recognizable message link")
	case errors.Is(err, services.ErrNoTargets):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no forward targets configured")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeEnqueueFailed, "failed to enqueue link")
	default:
		ok(c, http.StatusAccepted, EnqueueLinkResponse{
			Queued:     true,
			QueueDepth: h.Forwarder.QueueDepth(),
		})
	}
}
