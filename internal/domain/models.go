// Package domain defines the persistence models for the relay: the processed
// message fingerprint set, the pending-forward ledger, and the joined-channel
// set. These types are mapped with GORM and form the whole on-disk state of
// the service.
package domain

import "time"

// Pending-forward ledger statuses. WAITING_APPROVAL is the only retryable
// state; DONE and JOIN_FAILED are terminal.
const (
	PendingWaitingApproval = "waiting_approval"
	PendingLimitExceeded   = "limit_exceeded"
	PendingJoinFailed      = "join_failed"
	PendingDone            = "done"
)

// ProcessedMessage is one fingerprint in the deduplication set. Hash is the
// hex SHA-256 of a message's canonical identity (or of a raw link), which
// makes inserts naturally idempotent through the primary key.
//
// Rows are created only after at least one successful delivery and removed by
// the retention sweep.
type ProcessedMessage struct {
	Hash        string    `gorm:"type:char(64);primaryKey"`
	ProcessedAt time.Time `gorm:"type:DATETIME NOT NULL;index:idx_processed_at"`
}

// TableName returns the database table name for ProcessedMessage.
func (ProcessedMessage) TableName() string { return "processed_messages" }

// PendingForward is one deferred forward attempt awaiting resolution: a fetch
// was gated on channel membership or approval and the item was parked here
// for the retry worker instead of being re-enqueued.
//
// Fields:
//   - ID: monotonic integer primary key.
//   - MessageLink: the original message link to retry.
//   - ChannelLink: canonical peer form of the gating channel (see telegram.Peer.String).
//   - Status: one of the Pending* constants; never moves backward from done.
//   - Attempts: retry attempts made so far.
//   - LastTryAt: nil until the first retry; the retry worker drains rows
//     least-recently-attempted first, nulls first, to avoid starvation.
//   - ErrorText: last error observed, for operators.
type PendingForward struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MessageLink string `gorm:"type:text;not null"`
	ChannelLink string `gorm:"type:text;not null;index:idx_pending_channel"`
	Status      string `gorm:"type:varchar(32);not null;index:idx_pending_status;check:status IN ('waiting_approval','limit_exceeded','join_failed','done')"`
	Attempts    int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	LastTryAt   *time.Time `gorm:"index:idx_pending_last_try"`
	ErrorText   string     `gorm:"type:text"`
}

// TableName returns the database table name for PendingForward.
func (PendingForward) TableName() string { return "pending_forwards" }

// JoinedChannel is one membership slot currently held by the relay account.
// The tracker treats the table as a least-recently-joined cache bounded by
// the configured quota: the oldest JoinedAt is evicted first.
type JoinedChannel struct {
	ChannelLink string    `gorm:"type:text;primaryKey"`
	ChannelID   *int64    `gorm:"index"`
	JoinedAt    time.Time `gorm:"type:DATETIME NOT NULL;index:idx_joined_at"`
}

// TableName returns the database table name for JoinedChannel.
func (JoinedChannel) TableName() string { return "joined_channels" }
