package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkrelay/go-link-relay/internal/domain"
	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PendingListResponse is the body of GET /pending.
type PendingListResponse struct {
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Items    []domain.PendingForward `json:"items"`
}

// ListPending handles GET /pending: a newest-first page of ledger rows.
// Query parameters: page (1-based), page_size.
func (h *Handler) ListPending(c *gin.Context) {
	ctx := c.Request.Context()

	page := utils.AtoiDefault(c.Query("page"), 1)
	size := utils.ClampPageSize(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), defaultPageSize, maxPageSize)
	if page < 1 {
		page = 1
	}

	total, err := repo.CountPending(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to count pending forwards")
		return
	}
	items, err := repo.ListPendingPage(ctx, h.DB, utils.PageOffset(page, size), size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list pending forwards")
		return
	}

	ok(c, http.StatusOK, PendingListResponse{
		Total:    total,
		Page:     page,
		PageSize: size,
		Items:    items,
	})
}

// RetryRunResponse is the body of POST /pending/retry.
type RetryRunResponse struct {
	Attempted int `json:"attempted"`
}

// RunRetry handles POST /pending/retry: trigger one retry cycle on demand
// instead of waiting for the worker's next tick.
func (h *Handler) RunRetry(c *gin.Context) {
	n := h.Retry.RunCycle(c.Request.Context())
	ok(c, http.StatusOK, RetryRunResponse{Attempted: n})
}
