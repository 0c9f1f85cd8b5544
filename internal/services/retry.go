// RetryWorker – periodic reconciliation of the pending-forward ledger.
//
// This loop is the sole path by which deferred access requests eventually
// resolve: once a join approval lands, the next cycle fetches the message and
// pushes it through the same delivery path as the live queue. Rows are
// drained least-recently-attempted first so nothing starves, and a per-row
// failure never aborts the batch.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/linkrelay/go-link-relay/internal/domain"
	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/telegram"
)

// Retry-worker defaults; the interval floor keeps a misconfigured worker
// from hammering the platform.
const (
	MinRetryInterval        = time.Minute
	DefaultRetryInterval    = 5 * time.Minute
	DefaultRetryBatchSize   = 10
	DefaultRetryMaxAttempts = 5
)

// RetryWorker re-attempts ledger rows left in waiting_approval.
type RetryWorker struct {
	DB        *gorm.DB
	Forwarder *Forwarder
	Tracker   *SubscriptionTracker
	Client    telegram.Client

	Interval    time.Duration // floored at MinRetryInterval
	BatchSize   int           // zero means DefaultRetryBatchSize
	MaxAttempts int           // zero means DefaultRetryMaxAttempts
	Targets     []string      // delivery targets for resolved rows

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (w *RetryWorker) interval() time.Duration {
	if w.Interval <= 0 {
		return DefaultRetryInterval
	}
	if w.Interval < MinRetryInterval {
		return MinRetryInterval
	}
	return w.Interval
}

func (w *RetryWorker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return DefaultRetryBatchSize
}

func (w *RetryWorker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return DefaultRetryMaxAttempts
}

// Start launches the reconciliation loop. No-op when already running.
func (w *RetryWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunCycle(ctx)
			}
		}
	}()
	log.Info().Dur("interval", w.interval()).Msg("pending-forward retry worker started")
}

// Stop halts the loop and waits for an in-flight cycle. Idempotent.
func (w *RetryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
	log.Info().Msg("pending-forward retry worker stopped")
}

// RunCycle drains one batch of retryable ledger rows and returns how many
// rows were attempted. Exposed so operators (and tests) can trigger a cycle
// on demand.
func (w *RetryWorker) RunCycle(ctx context.Context) int {
	tr := otel.Tracer("services/RetryWorker")
	ctx, span := tr.Start(ctx, "RunCycle")
	defer span.End()

	rows, err := repo.ListRetryable(ctx, w.DB, w.batchSize(), w.maxAttempts())
	if err != nil {
		// Read degrades to an empty batch; the next cycle tries again.
		log.Error().Err(err).Msg("failed to list retryable pending forwards")
		return 0
	}
	for i := range rows {
		w.retryRow(ctx, &rows[i])
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return len(rows)
}

// retryRow re-attempts one ledger row. Outcomes:
//   - fetch ok, not yet forwarded: deliver, mark done, release membership
//   - fetch ok, already forwarded (duplicate): mark done without delivering
//   - unrecoverable error (invalid channel, unparseable link): join_failed
//   - anything else: attempts+1, waiting_approval under the cap, join_failed
//     at the cap
func (w *RetryWorker) retryRow(ctx context.Context, row *domain.PendingForward) {
	now := time.Now().UTC()
	attempts := row.Attempts + 1

	ref, ok := telegram.ParseLink(row.MessageLink)
	if !ok {
		w.update(ctx, row.ID, domain.PendingJoinFailed, attempts, now, "unparseable message link")
		retryRowsTotal.WithLabelValues("unparseable").Inc()
		return
	}

	msg, err := w.Client.FetchMessage(ctx, ref.Peer, ref.MsgID)
	if err == nil {
		if w.resolve(ctx, row, ref, msg) {
			w.update(ctx, row.ID, domain.PendingDone, attempts, now, "")
			w.Tracker.LeaveAfterForward(ctx, telegram.ParsePeer(row.ChannelLink))
			retryRowsTotal.WithLabelValues("done").Inc()
			return
		}
		err = errors.New("delivery failed for all targets")
	}

	status := domain.PendingWaitingApproval
	outcome := "retried"
	if errors.Is(err, telegram.ErrChannelInvalid) || attempts >= w.maxAttempts() {
		status = domain.PendingJoinFailed
		outcome = "failed"
	}
	w.update(ctx, row.ID, status, attempts, now, err.Error())
	retryRowsTotal.WithLabelValues(outcome).Inc()
	log.Info().
		Uint("id", row.ID).
		Int("attempts", attempts).
		Str("status", status).
		Str("link", row.MessageLink).
		Msg("pending forward retry attempt finished")
}

// resolve delivers a now-fetchable message unless it was already forwarded.
// Returns true when the row can be closed.
func (w *RetryWorker) resolve(ctx context.Context, row *domain.PendingForward, ref telegram.MessageRef, msg *telegram.Message) bool {
	identity := msg.Identity()
	if w.Forwarder.dedup.IsDuplicate(ctx, identity) {
		// Forwarded earlier (e.g. by the opportunistic re-fetch after a
		// join); just close the ledger row.
		log.Info().Str("identity", identity).Uint("id", row.ID).Msg("pending forward already delivered")
		return true
	}
	if w.Forwarder.deliverAll(ctx, msg, w.Targets) == 0 {
		return false
	}
	w.Forwarder.recordProcessed(ctx, identity, ref.Link)
	return true
}

func (w *RetryWorker) update(ctx context.Context, id uint, status string, attempts int, at time.Time, errText string) {
	if err := repo.UpdatePendingStatus(ctx, w.DB, id, status, attempts, at, errText); err != nil {
		log.Error().Err(err).Uint("id", id).Msg("failed to update pending-forward row")
	}
}
