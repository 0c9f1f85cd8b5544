// SubscriptionTracker – the bounded channel-membership cache.
//
// Platforms impose a hard ceiling on simultaneous channel memberships for
// automated accounts. The tracker keeps the relay under a configured quota by
// treating memberships as a least-recently-joined cache with explicit
// eviction: when a slot is needed and the quota is full, the oldest joined
// channel is left first.
//
// Per-channel state machine:
//
//	NOT_MEMBER -> JOIN_REQUESTED -> {MEMBER | WAITING_APPROVAL} -> NOT_MEMBER
//
// Every gated outcome is recorded in the pending-forward ledger so the retry
// worker can resolve it later; see the Pending* constants in domain.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/linkrelay/go-link-relay/internal/domain"
	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/telegram"
)

// DefaultJoinQuota is the membership ceiling used when none is configured.
const DefaultJoinQuota = 10

// JoinStatus is the outcome of an EnsureMembership call. The string values
// match the ledger statuses they produce.
type JoinStatus string

const (
	StatusJoined          JoinStatus = "joined"
	StatusWaitingApproval JoinStatus = JoinStatus(domain.PendingWaitingApproval)
	StatusLimitExceeded   JoinStatus = JoinStatus(domain.PendingLimitExceeded)
	StatusJoinFailed      JoinStatus = JoinStatus(domain.PendingJoinFailed)
)

// SubscriptionTracker manages the channels the relay account currently
// belongs to. Calls are serialized by an internal mutex so the quota
// invariant holds under concurrent use from the queue worker and the retry
// worker; storage operations inside a call are individual transactions, so
// no storage lock is ever held across a network call.
type SubscriptionTracker struct {
	DB     *gorm.DB
	Client telegram.Client
	Quota  int // zero means DefaultJoinQuota

	mu sync.Mutex
}

func (t *SubscriptionTracker) quota() int64 {
	if t.Quota > 0 {
		return int64(t.Quota)
	}
	return DefaultJoinQuota
}

// EnsureMembership makes the relay account a member of the channel owning
// messageLink, evicting the oldest membership first when the quota is full.
//
// The joined-channel count never exceeds the quota when this returns. Every
// outcome except a plain failure to evict also appends a ledger row: a
// successful join still writes a waiting_approval entry because the platform
// may not make messages visible until the join is approved; the retry
// worker resolves the row either way.
func (t *SubscriptionTracker) EnsureMembership(ctx context.Context, peer telegram.Peer, messageLink string) JoinStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := otel.Tracer("services/SubscriptionTracker")
	ctx, span := tr.Start(ctx, "EnsureMembership",
		trace.WithAttributes(attribute.String("channel", peer.String())),
	)
	defer span.End()

	status := t.ensureMembershipLocked(ctx, peer, messageLink)
	joinAttemptsTotal.WithLabelValues(string(status)).Inc()
	span.SetAttributes(attribute.String("status", string(status)))
	return status
}

func (t *SubscriptionTracker) ensureMembershipLocked(ctx context.Context, peer telegram.Peer, messageLink string) JoinStatus {
	channelLink := peer.String()

	n, err := repo.CountJoined(ctx, t.DB)
	if err != nil {
		// Read degrades to "slot available" so a storage fault cannot block
		// the pipeline.
		log.Error().Err(err).Msg("joined-channel count failed; assuming a free slot")
		n = 0
	}

	if n >= t.quota() {
		if !t.evictOldestLocked(ctx) {
			t.appendLedger(ctx, messageLink, channelLink, domain.PendingLimitExceeded,
				"membership quota exhausted and eviction failed")
			return StatusLimitExceeded
		}
	}

	err = t.Client.JoinChannel(ctx, peer)
	switch {
	case err == nil:
		var idPtr *int64
		if id, ok := t.Client.ResolveChannelID(ctx, peer); ok {
			idPtr = &id
		}
		if uerr := repo.UpsertJoined(ctx, t.DB, channelLink, idPtr, time.Now().UTC()); uerr != nil {
			log.Error().Err(uerr).Str("channel", channelLink).Msg("failed to record membership slot")
		}
		// Visibility may still be gated on approval; the retry worker will
		// confirm and close this row.
		t.appendLedger(ctx, messageLink, channelLink, domain.PendingWaitingApproval, "")
		log.Info().Str("channel", channelLink).Msg("joined channel")
		return StatusJoined

	case errors.Is(err, telegram.ErrTooManyChannels):
		t.appendLedger(ctx, messageLink, channelLink, domain.PendingLimitExceeded, err.Error())
		log.Warn().Str("channel", channelLink).Msg("cannot join: membership limit reached")
		return StatusLimitExceeded

	case errors.Is(err, telegram.ErrChannelPrivate):
		t.appendLedger(ctx, messageLink, channelLink, domain.PendingWaitingApproval, err.Error())
		log.Info().Str("channel", channelLink).Msg("join requires approval; queued for retry")
		return StatusWaitingApproval

	default:
		t.appendLedger(ctx, messageLink, channelLink, domain.PendingJoinFailed, err.Error())
		log.Error().Err(err).Str("channel", channelLink).Msg("failed to join channel")
		return StatusJoinFailed
	}
}

// evictOldestLocked frees one membership slot by leaving the
// least-recently-joined channel. The slot row is removed only when the leave
// succeeded; a failed leave keeps the row so the count stays honest.
func (t *SubscriptionTracker) evictOldestLocked(ctx context.Context) bool {
	oldest, err := repo.OldestJoined(ctx, t.DB)
	if err != nil {
		log.Error().Err(err).Msg("no evictable membership slot found")
		return false
	}
	if err := t.Client.LeaveChannel(ctx, telegram.ParsePeer(oldest.ChannelLink)); err != nil {
		log.Warn().Err(err).Str("channel", oldest.ChannelLink).Msg("failed to leave channel during eviction")
		return false
	}
	if err := repo.DeleteJoined(ctx, t.DB, oldest.ChannelLink); err != nil {
		log.Error().Err(err).Str("channel", oldest.ChannelLink).Msg("failed to delete evicted membership slot")
		return false
	}
	log.Info().Str("channel", oldest.ChannelLink).Msg("evicted oldest channel membership")
	return true
}

// LeaveAfterForward releases a temporary membership once a forward has
// completed. The leave is best-effort; the slot row is removed even when the
// leave call fails so a broken channel can never pin a quota slot forever.
func (t *SubscriptionTracker) LeaveAfterForward(ctx context.Context, peer telegram.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	channelLink := peer.String()
	if err := t.Client.LeaveChannel(ctx, peer); err != nil {
		log.Warn().Err(err).Str("channel", channelLink).Msg("failed to leave channel after forward")
	} else {
		log.Info().Str("channel", channelLink).Msg("left channel after forward")
	}
	if err := repo.DeleteJoined(ctx, t.DB, channelLink); err != nil {
		log.Error().Err(err).Str("channel", channelLink).Msg("failed to delete membership slot")
	}
}

// JoinedCount returns the number of membership slots currently held.
func (t *SubscriptionTracker) JoinedCount(ctx context.Context) int64 {
	n, err := repo.CountJoined(ctx, t.DB)
	if err != nil {
		log.Error().Err(err).Msg("joined-channel count failed")
		return 0
	}
	return n
}

func (t *SubscriptionTracker) appendLedger(ctx context.Context, messageLink, channelLink, status, errText string) {
	if _, err := repo.AppendPending(ctx, t.DB, messageLink, channelLink, status, errText); err != nil {
		log.Error().Err(err).
			Str("link", messageLink).
			Str("status", status).
			Msg("failed to append pending-forward ledger row")
	}
}
