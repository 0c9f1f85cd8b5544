// Repository functions for the processed-message fingerprint set.
//
// Error semantics: raw gorm errors are propagated; the service layer decides
// how to degrade (reads fall back to "not duplicate", writes surface the
// error without crashing the pipeline).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/linkrelay/go-link-relay/internal/domain"
)

// HasFingerprint reports whether hash is already recorded.
func HasFingerprint(ctx context.Context, db *gorm.DB, hash string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ProcessedMessage{}).
		Where("hash = ?", hash).
		Count(&count).Error
	return count > 0, err
}

// InsertFingerprint records hash as processed at the given time. Duplicate
// inserts are no-ops, not errors (ON CONFLICT DO NOTHING on the primary key).
func InsertFingerprint(ctx context.Context, db *gorm.DB, hash string, at time.Time) error {
	row := &domain.ProcessedMessage{Hash: hash, ProcessedAt: at}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
}

// DeleteFingerprintsBefore removes fingerprints processed before cutoff and
// returns how many rows were deleted.
func DeleteFingerprintsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&domain.ProcessedMessage{})
	return res.RowsAffected, res.Error
}

// FingerprintStats returns the total number of recorded fingerprints and how
// many were recorded since startOfDay. Used by the status endpoint.
func FingerprintStats(ctx context.Context, db *gorm.DB, startOfDay time.Time) (total, today int64, err error) {
	q := db.WithContext(ctx).Model(&domain.ProcessedMessage{})
	if err = q.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = db.WithContext(ctx).
		Model(&domain.ProcessedMessage{}).
		Where("processed_at >= ?", startOfDay).
		Count(&today).Error
	return total, today, err
}
