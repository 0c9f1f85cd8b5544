// Repository functions for the pending-forward ledger.
//
// The ledger is the persisted record of every forward attempt that was gated
// on channel access. Rows are appended by the subscription tracker, drained
// by the retry worker, and never deleted; terminal rows (done, join_failed)
// stay behind as an audit trail.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/linkrelay/go-link-relay/internal/domain"
)

// AppendPending inserts a new ledger row and returns it (with the assigned
// monotonic id). errText may be empty.
func AppendPending(ctx context.Context, db *gorm.DB, messageLink, channelLink, status, errText string) (*domain.PendingForward, error) {
	row := &domain.PendingForward{
		MessageLink: messageLink,
		ChannelLink: channelLink,
		Status:      status,
		ErrorText:   errText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// UpdatePendingStatus mutates one ledger row after a retry attempt.
// Returns ErrNotFound when the row does not exist.
func UpdatePendingStatus(ctx context.Context, db *gorm.DB, id uint, status string, attempts int, lastTryAt time.Time, errText string) error {
	res := db.WithContext(ctx).
		Model(&domain.PendingForward{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"attempts":    attempts,
			"last_try_at": lastTryAt,
			"error_text":  errText,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRetryable returns up to limit rows still waiting for approval with
// fewer than maxAttempts attempts, least-recently-attempted first. Rows that
// were never attempted (NULL last_try_at) sort before everything else so no
// entry starves.
func ListRetryable(ctx context.Context, db *gorm.DB, limit, maxAttempts int) ([]domain.PendingForward, error) {
	var out []domain.PendingForward
	err := db.WithContext(ctx).
		Where("status = ? AND attempts < ?", domain.PendingWaitingApproval, maxAttempts).
		Order("last_try_at IS NOT NULL, last_try_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPendingByStatus returns the number of ledger rows per status.
func CountPendingByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.PendingForward{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// CountPending returns the total number of ledger rows.
func CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.PendingForward{}).Count(&total).Error
	return total, err
}

// ListPendingPage returns one page of ledger rows, newest first, for the
// status API.
func ListPendingPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PendingForward, error) {
	var out []domain.PendingForward
	err := db.WithContext(ctx).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
