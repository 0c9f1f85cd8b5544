// Link parsing for message URLs.
//
// A message link has the shape https://<host>/<channel>/<id> for public
// channels and https://<host>/c/<digits>/<id> for private ones. The private
// numeric form maps to the platform's internal channel id convention: the
// digits are prefixed with -100 (so c/12345/42 refers to channel -10012345,
// message 42).
//
// Everything in this file is pure and side-effect free: malformed input
// yields an empty result, never an error, so the extractor can run over
// arbitrary message text without any network access.
package telegram

import (
	"regexp"
	"strconv"
	"strings"
)

// messageLinkRE matches one message link. Group 1 is the optional private
// "c/" marker, group 2 the channel slug, group 3 the message sequence number.
var messageLinkRE = regexp.MustCompile(`https?://[\w.-]+/(c/)?([\w]+)/([0-9]+)`)

// privateIDPrefix is the platform convention for channel ids derived from
// private links.
const privateIDPrefix = "-100"

// MessageRef is a parsed, immutable reference to one message: the peer that
// owns it, the message sequence number, and the raw link it was parsed from.
type MessageRef struct {
	Peer  Peer
	MsgID int
	Link  string
}

// ParseLink extracts the peer and message id from a single message link.
// The second return value is false when the link does not match the pattern
// or the numbers overflow.
func ParseLink(link string) (MessageRef, bool) {
	m := messageLinkRE.FindStringSubmatch(link)
	if m == nil {
		return MessageRef{}, false
	}

	msgID, err := strconv.Atoi(m[3])
	if err != nil {
		return MessageRef{}, false
	}

	ref := MessageRef{MsgID: msgID, Link: m[0]}
	if m[1] != "" {
		id, err := strconv.ParseInt(privateIDPrefix+m[2], 10, 64)
		if err != nil {
			return MessageRef{}, false
		}
		ref.Peer = Peer{ID: id}
	} else {
		ref.Peer = Peer{Username: m[2]}
	}
	return ref, true
}

// ExtractRefs scans free-form message text and returns a reference for every
// message link it contains, in order of appearance. Text without links yields
// an empty slice.
func ExtractRefs(text string) []MessageRef {
	if text == "" {
		return nil
	}
	var out []MessageRef
	for _, m := range messageLinkRE.FindAllString(text, -1) {
		if ref, ok := ParseLink(m); ok {
			out = append(out, ref)
		}
	}
	return out
}

// ParsePeer converts the persisted textual form of a peer (see Peer.String)
// back into a Peer. "@name" and bare "name" both resolve to a username;
// a decimal integer resolves to a numeric id.
func ParsePeer(s string) Peer {
	s = strings.TrimSpace(s)
	if s == "" {
		return Peer{}
	}
	if strings.HasPrefix(s, "@") {
		return Peer{Username: strings.TrimPrefix(s, "@")}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Peer{ID: id}
	}
	return Peer{Username: s}
}
