package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/telegram"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// sentForward records one successful ForwardMessage call.
type sentForward struct {
	target   string
	identity string
	at       time.Time
}

// fakeClient is an in-memory telegram.Client. Fetch/join/leave/deliver
// behavior is programmed per peer or target; all calls are recorded.
type fakeClient struct {
	mu sync.Mutex

	messages    map[string]*telegram.Message // fetchKey -> message
	fetchErrs   map[string]error             // fetchKey -> error
	joinErrs    map[string]error             // peer -> error
	leaveErrs   map[string]error             // peer -> error
	resolveIDs  map[string]int64             // peer -> id
	deliverErrs map[string]error             // target -> error

	joins    []string
	leaves   []string
	forwards []sentForward
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages:    make(map[string]*telegram.Message),
		fetchErrs:   make(map[string]error),
		joinErrs:    make(map[string]error),
		leaveErrs:   make(map[string]error),
		resolveIDs:  make(map[string]int64),
		deliverErrs: make(map[string]error),
	}
}

func fetchKey(peer telegram.Peer, msgID int) string {
	return fmt.Sprintf("%s/%d", peer.String(), msgID)
}

// setMessage makes a message fetchable for the given peer.
func (c *fakeClient) setMessage(peer telegram.Peer, msgID int, channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[fetchKey(peer, msgID)] = &telegram.Message{
		ChannelID: channelID,
		ID:        msgID,
		Text:      "msg",
		Date:      time.Now().UTC(),
	}
}

// failFetch makes fetches for the peer's message fail with err until a
// successful join clears it (access granted by joining).
func (c *fakeClient) failFetch(peer telegram.Peer, msgID int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErrs[fetchKey(peer, msgID)] = err
}

func (c *fakeClient) FetchMessage(_ context.Context, peer telegram.Peer, msgID int) (*telegram.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fetchKey(peer, msgID)
	if err, ok := c.fetchErrs[key]; ok {
		return nil, err
	}
	if m, ok := c.messages[key]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, telegram.ErrChannelInvalid
}

func (c *fakeClient) JoinChannel(_ context.Context, peer telegram.Peer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, peer.String())
	if err, ok := c.joinErrs[peer.String()]; ok {
		return err
	}
	// Joining grants read access: clear programmed fetch failures for this
	// peer.
	prefix := peer.String() + "/"
	for k := range c.fetchErrs {
		if strings.HasPrefix(k, prefix) {
			delete(c.fetchErrs, k)
		}
	}
	return nil
}

func (c *fakeClient) LeaveChannel(_ context.Context, peer telegram.Peer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves = append(c.leaves, peer.String())
	if err, ok := c.leaveErrs[peer.String()]; ok {
		return err
	}
	return nil
}

func (c *fakeClient) ForwardMessage(_ context.Context, target string, msg *telegram.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.deliverErrs[target]; ok {
		return err
	}
	c.forwards = append(c.forwards, sentForward{
		target:   target,
		identity: msg.Identity(),
		at:       time.Now(),
	})
	return nil
}

func (c *fakeClient) ResolveChannelID(_ context.Context, peer telegram.Peer) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resolveIDs[peer.String()]
	return id, ok
}

func (c *fakeClient) forwardsSnapshot() []sentForward {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentForward, len(c.forwards))
	copy(out, c.forwards)
	return out
}

func (c *fakeClient) joinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.joins)
}

func (c *fakeClient) leavesSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.leaves))
	copy(out, c.leaves)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
