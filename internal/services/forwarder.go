// Forwarder – the bounded, rate-limited, single-consumer forwarding queue.
//
// Producers (the new-message handler, the HTTP enqueue endpoint) push parsed
// links into a bounded channel; one background worker drains it sequentially.
// The serialization is intentional: it gives a single global place to apply
// rate limiting and guarantees forwards are attempted in enqueue order.
//
// Two throttles compose before every send: a token bucket capping messages
// per second (burst 1, so sends are spaced at the minimum interval) and a
// fixed inter-send delay. Both default to off.
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
	"golang.org/x/time/rate"

	"github.com/linkrelay/go-link-relay/internal/telegram"
)

// DefaultQueueSize bounds the queue when no explicit maximum is configured.
// A full queue blocks Enqueue (backpressure) instead of growing without
// limit.
const DefaultQueueSize = 1024

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	// Delay is the fixed wait inserted before every send. Zero disables it.
	Delay time.Duration

	// MaxPerSecond caps outgoing sends per second. Zero disables the cap.
	MaxPerSecond float64

	// QueueSize bounds the queue; zero means DefaultQueueSize.
	QueueSize int

	// DryRun logs what would be forwarded instead of enqueuing.
	DryRun bool

	// Keywords optionally pre-filters message text in HandleText.
	Keywords *KeywordMatcher
}

type workItem struct {
	ref     telegram.MessageRef
	targets []string
}

// Forwarder owns the forwarding queue and its single worker goroutine.
type Forwarder struct {
	client  telegram.Client
	dedup   *DedupStore
	tracker *SubscriptionTracker

	delay    time.Duration
	limiter  *rate.Limiter
	dryRun   bool
	keywords *KeywordMatcher

	queue chan workItem

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewForwarder builds a Forwarder around the external client, the
// deduplication store, and the subscription tracker.
func NewForwarder(client telegram.Client, dedup *DedupStore, tracker *SubscriptionTracker, opts ForwarderOptions) *Forwarder {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	f := &Forwarder{
		client:   client,
		dedup:    dedup,
		tracker:  tracker,
		delay:    opts.Delay,
		dryRun:   opts.DryRun,
		keywords: opts.Keywords,
		queue:    make(chan workItem, size),
	}
	if opts.MaxPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.MaxPerSecond), 1)
	}
	log.Info().
		Dur("delay", opts.Delay).
		Float64("max_per_second", opts.MaxPerSecond).
		Int("queue_size", size).
		Bool("dry_run", opts.DryRun).
		Msg("forwarding queue initialized")
	return f
}

// Start launches the queue worker. Calling Start on a running Forwarder is a
// no-op.
func (f *Forwarder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.running = true

	f.wg.Add(1)
	go f.run(ctx)
	log.Info().Msg("forwarding queue worker started")
}

// Stop signals the worker to finish its in-flight item and exit, then waits
// for it. Items left in the queue stay buffered. Idempotent.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.cancel()
	f.mu.Unlock()
	f.wg.Wait()
	log.Info().Msg("forwarding queue worker stopped")
}

// QueueDepth returns the number of links currently waiting in the queue.
func (f *Forwarder) QueueDepth() int { return len(f.queue) }

// Enqueue parses link and appends a work item for it. When the queue is at
// capacity the call blocks until a slot frees up or ctx is done.
func (f *Forwarder) Enqueue(ctx context.Context, link string, targets []string) error {
	ref, ok := telegram.ParseLink(link)
	if !ok {
		return ErrInvalidLink
	}
	if len(targets) == 0 {
		return ErrNoTargets
	}
	item := workItem{ref: ref, targets: targets}
	select {
	case f.queue <- item:
		queueDepth.Set(float64(len(f.queue)))
		log.Info().Str("link", ref.Link).Msg("queued link for forwarding")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleText is the new-message event entry point: it extracts message links
// from text and enqueues each one. Links already recorded as processed are
// skipped up front; the authoritative duplicate check still happens
// post-fetch on the message identity. Returns the number of links enqueued.
func (f *Forwarder) HandleText(ctx context.Context, text string, targets []string) int {
	if f.keywords != nil && !f.keywords.Matches(text) {
		return 0
	}
	queued := 0
	for _, ref := range telegram.ExtractRefs(text) {
		if f.dedup.IsDuplicate(ctx, ref.Link) {
			log.Info().Str("link", ref.Link).Msg("link already processed, skipping")
			continue
		}
		if f.dryRun {
			log.Info().Str("link", ref.Link).Msg("dry run: would forward")
			continue
		}
		if err := f.Enqueue(ctx, ref.Link, targets); err != nil {
			log.Warn().Err(err).Str("link", ref.Link).Msg("failed to enqueue link")
			continue
		}
		queued++
	}
	return queued
}

func (f *Forwarder) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-f.queue:
			queueDepth.Set(float64(len(f.queue)))
			f.process(ctx, item)
		}
	}
}

// process executes one work item end to end: fetch, membership recovery,
// duplicate check, rate-limited delivery, fingerprint recording.
func (f *Forwarder) process(ctx context.Context, item workItem) {
	tr := otel.Tracer("services/Forwarder")
	ctx, span := tr.Start(ctx, "process",
		trace.WithAttributes(attribute.String("link", item.ref.Link)),
	)
	defer span.End()

	msg, err := f.client.FetchMessage(ctx, item.ref.Peer, item.ref.MsgID)
	leaveAfter := false
	if err != nil && isAccessError(err) {
		status := f.tracker.EnsureMembership(ctx, item.ref.Peer, item.ref.Link)
		if status != StatusJoined {
			// The ledger row written by the tracker carries this item now;
			// the retry worker picks it up. Do not re-enqueue.
			log.Info().
				Str("link", item.ref.Link).
				Str("status", string(status)).
				Msg("message deferred pending channel access")
			return
		}
		msg, err = f.client.FetchMessage(ctx, item.ref.Peer, item.ref.MsgID)
		leaveAfter = err == nil
	}
	if err != nil {
		log.Warn().Err(err).Str("link", item.ref.Link).Msg("message not available")
		return
	}

	identity := msg.Identity()
	if f.dedup.IsDuplicate(ctx, identity) {
		duplicatesTotal.Inc()
		log.Info().Str("identity", identity).Msg("duplicate message, skipping")
		return
	}

	if f.deliverAll(ctx, msg, item.targets) == 0 {
		return
	}

	f.recordProcessed(ctx, identity, item.ref.Link)
	if leaveAfter {
		f.tracker.LeaveAfterForward(ctx, item.ref.Peer)
	}
}

// deliverAll sends msg to every target, applying the rate limits before each
// send. Per-target failures are logged and do not abort delivery to the
// remaining targets. Returns the number of successful deliveries.
func (f *Forwarder) deliverAll(ctx context.Context, msg *telegram.Message, targets []string) int {
	identity := msg.Identity()
	delivered := 0
	for _, target := range targets {
		if err := f.pace(ctx); err != nil {
			return delivered
		}
		if err := f.client.ForwardMessage(ctx, target, msg); err != nil {
			forwardErrorsTotal.WithLabelValues(target).Inc()
			log.Error().Err(err).
				Str("identity", identity).
				Str("target", target).
				Msg("failed to forward message")
			continue
		}
		forwardsTotal.WithLabelValues(target).Inc()
		log.Info().Str("identity", identity).Str("target", target).Msg("forwarded message")
		delivered++
	}
	return delivered
}

// pace blocks until the next send is allowed: first the per-second token
// bucket, then the fixed delay.
func (f *Forwarder) pace(ctx context.Context) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// recordProcessed fingerprints both the message identity and the original
// link, so a re-posted link short-circuits before any fetch. Write errors are
// logged; the forward already happened and must not be retried because of a
// bookkeeping failure.
func (f *Forwarder) recordProcessed(ctx context.Context, identity, link string) {
	if err := f.dedup.MarkProcessed(ctx, identity); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to record fingerprint")
	}
	if err := f.dedup.MarkProcessed(ctx, link); err != nil {
		log.Error().Err(err).Str("link", link).Msg("failed to record link fingerprint")
	}
}

func isAccessError(err error) bool {
	return errors.Is(err, telegram.ErrChannelPrivate) || errors.Is(err, telegram.ErrChannelInvalid)
}
