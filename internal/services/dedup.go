// DedupStore – the persistent deduplication set.
//
// Identities (a message's canonical "<channel>:<id>" string, or a raw link)
// are hashed with SHA-256 before lookup, so the table never stores message
// content. A fingerprint exists only after at least one successful delivery.
//
// Failure semantics follow the pipeline-wide rule: read errors degrade to a
// conservative "not duplicate" so a transient storage fault never blocks
// forwarding; write errors are surfaced to the caller but never crash the
// worker loop.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/linkrelay/go-link-relay/internal/repo"
)

// DefaultRetention is the fingerprint retention window when none is
// configured.
const DefaultRetention = 7 * 24 * time.Hour

// Fingerprint returns the hex SHA-256 digest of an identity string.
func Fingerprint(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// DedupStats summarizes the fingerprint set for the status API.
type DedupStats struct {
	Total     int64         `json:"total"`
	Today     int64         `json:"today"`
	Retention time.Duration `json:"retention"`
}

// DedupStore tracks processed message identities. Safe for concurrent use;
// each call is one storage transaction.
type DedupStore struct {
	DB        *gorm.DB
	Retention time.Duration // zero means DefaultRetention

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (s *DedupStore) retention() time.Duration {
	if s.Retention > 0 {
		return s.Retention
	}
	return DefaultRetention
}

// IsDuplicate reports whether identity has been processed before. Storage
// errors are logged and degrade to false.
func (s *DedupStore) IsDuplicate(ctx context.Context, identity string) bool {
	ok, err := repo.HasFingerprint(ctx, s.DB, Fingerprint(identity))
	if err != nil {
		log.Error().Err(err).Msg("dedup lookup failed; treating as not duplicate")
		return false
	}
	return ok
}

// MarkProcessed records identity as processed. Duplicate marks are no-ops.
func (s *DedupStore) MarkProcessed(ctx context.Context, identity string) error {
	return repo.InsertFingerprint(ctx, s.DB, Fingerprint(identity), time.Now().UTC())
}

// EvictOld deletes fingerprints older than the retention window and returns
// the number of rows removed. Runs at startup and from the sweeper.
func (s *DedupStore) EvictOld(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.retention())
	deleted, err := repo.DeleteFingerprintsBefore(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("evicted expired fingerprints")
	}
	return deleted, nil
}

// Stats returns aggregate information about the fingerprint set.
func (s *DedupStore) Stats(ctx context.Context) (DedupStats, error) {
	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	total, today, err := repo.FingerprintStats(ctx, s.DB, startOfDay)
	if err != nil {
		return DedupStats{}, err
	}
	return DedupStats{Total: total, Today: today, Retention: s.retention()}, nil
}

// StartSweeper launches a background loop that evicts expired fingerprints
// every interval. Calling it twice is a no-op.
func (s *DedupStore) StartSweeper(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.EvictOld(ctx); err != nil {
					log.Error().Err(err).Msg("fingerprint eviction sweep failed")
				}
			}
		}
	}()
}

// StopSweeper stops the eviction loop. Idempotent.
func (s *DedupStore) StopSweeper() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
