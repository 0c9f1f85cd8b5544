// Repository functions for the joined-channel set.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/linkrelay/go-link-relay/internal/domain"
)

// CountJoined returns the number of membership slots currently held.
func CountJoined(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.JoinedChannel{}).Count(&n).Error
	return n, err
}

// OldestJoined returns the least-recently-joined channel, or ErrNotFound when
// no slot is held.
func OldestJoined(ctx context.Context, db *gorm.DB) (*domain.JoinedChannel, error) {
	var row domain.JoinedChannel
	err := db.WithContext(ctx).
		Order("joined_at ASC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertJoined records (or refreshes) a membership slot for channelLink.
// Re-joining an already-held channel updates JoinedAt rather than consuming a
// second slot.
func UpsertJoined(ctx context.Context, db *gorm.DB, channelLink string, channelID *int64, joinedAt time.Time) error {
	row := &domain.JoinedChannel{
		ChannelLink: channelLink,
		ChannelID:   channelID,
		JoinedAt:    joinedAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_link"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

// DeleteJoined frees the membership slot for channelLink. Deleting a missing
// row is not an error.
func DeleteJoined(ctx context.Context, db *gorm.DB, channelLink string) error {
	return db.WithContext(ctx).
		Where("channel_link = ?", channelLink).
		Delete(&domain.JoinedChannel{}).Error
}

// ListJoined returns all held slots ordered oldest first.
func ListJoined(ctx context.Context, db *gorm.DB) ([]domain.JoinedChannel, error) {
	var out []domain.JoinedChannel
	err := db.WithContext(ctx).
		Order("joined_at ASC").
		Find(&out).Error
	return out, err
}
