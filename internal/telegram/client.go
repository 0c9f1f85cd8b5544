// Package telegram defines the boundary to the external messaging client.
//
// The relay core never speaks the wire protocol itself: everything that
// touches the network goes through the Client interface, and the concrete
// implementation (connection, auth, session handling) is supplied by the
// embedding process. Keeping the surface this small makes every service in
// internal/services testable with an in-memory fake.
//
// Error semantics mirror the platform's RPC error classes the relay cares
// about. Implementations must wrap the corresponding transport errors so that
// errors.Is matches the sentinels below; anything else is treated as a
// generic transient failure by the callers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors an implementation must surface for the relay's access and
// quota handling to work.
var (
	// ErrChannelPrivate means the channel exists but its messages are not
	// visible to the account (restricted access, join approval pending, or
	// membership required).
	ErrChannelPrivate = errors.New("telegram: channel is private")

	// ErrChannelInvalid means the channel reference does not resolve at all.
	ErrChannelInvalid = errors.New("telegram: channel is invalid")

	// ErrTooManyChannels means the account hit the platform ceiling on
	// simultaneous channel memberships.
	ErrTooManyChannels = errors.New("telegram: too many channels joined")
)

// Peer identifies a channel either by public username or by numeric id
// (private channels). Exactly one of the two fields is set.
type Peer struct {
	Username string
	ID       int64
}

// IsZero reports whether the peer carries no identity at all.
func (p Peer) IsZero() bool { return p.Username == "" && p.ID == 0 }

// String returns the canonical textual form: "@username" for public peers,
// the decimal id for private ones. This form is what gets persisted in the
// joined-channel table and the pending ledger, and ParsePeer reverses it.
func (p Peer) String() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return strconv.FormatInt(p.ID, 10)
}

// Message is the minimal projection of a fetched message the relay needs:
// enough to build a stable identity and to hand back for forwarding.
type Message struct {
	ChannelID int64
	ID        int
	Text      string
	Date      time.Time
}

// Identity returns the canonical identity string used for deduplication,
// "<channelID>:<messageID>".
func (m *Message) Identity() string {
	return fmt.Sprintf("%d:%d", m.ChannelID, m.ID)
}

// Client is the consumed interface of the external messaging client.
//
// All methods are blocking network operations and honour ctx cancellation.
type Client interface {
	// FetchMessage retrieves a single message. Returns ErrChannelPrivate or
	// ErrChannelInvalid (wrapped) when the channel gates access.
	FetchMessage(ctx context.Context, peer Peer, msgID int) (*Message, error)

	// JoinChannel joins the channel. Returns ErrTooManyChannels when the
	// membership quota is hit on the platform side, ErrChannelPrivate when
	// the join needs manual approval before messages become visible.
	JoinChannel(ctx context.Context, peer Peer) error

	// LeaveChannel leaves the channel. Best-effort from the relay's point of
	// view; callers log but never propagate the error.
	LeaveChannel(ctx context.Context, peer Peer) error

	// ForwardMessage delivers msg to the target channel.
	ForwardMessage(ctx context.Context, target string, msg *Message) error

	// ResolveChannelID resolves the numeric channel id of a peer, when the
	// client can. Used only for bookkeeping and logging.
	ResolveChannelID(ctx context.Context, peer Peer) (int64, bool)
}
