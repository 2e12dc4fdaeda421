// internal/multiplayer/peerlink.go
package multiplayer

import (
	"context"
	"time"
)

// LinkState is the lifecycle of a peer link. Connecting may resolve to open
// or to the terminal failed state; open links end in closed.
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkOpen
	LinkClosed
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	case LinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultLinkOpenTimeout bounds peer link establishment. Past it the link
// transitions to failed and the coordinator proceeds relay-only for that
// peer.
const DefaultLinkOpenTimeout = 5 * time.Second

// PeerLink is a point-to-point channel between two participants, used as a
// low-latency path for answer traffic during active gameplay. The system
// must remain correct if no link ever forms; the relay is always available
// as a fallback.
type PeerLink interface {
	// Open blocks until the link is established or ctx expires, returning
	// ErrConnection on failure. Failure is non-fatal to the session.
	Open(ctx context.Context) error

	// Send is fire-and-forget: silently dropped unless the link is open.
	Send(msg SessionMessage)

	// Close releases resources. Safe to call multiple times.
	Close()

	// State reports the current lifecycle state.
	State() LinkState
}
