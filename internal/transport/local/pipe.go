// internal/transport/local/pipe.go
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/multiplayer"
)

// pipeQueueSize bounds each link's inbound delivery queue.
const pipeQueueSize = 64

// pipeExchange pairs the two ends of a peer link. Each side dials; when
// both endpoints for the same (room, pair) key exist they are wired
// together and both transition to open. A lone endpoint stays connecting
// until its Open deadline expires.
type pipeExchange struct {
	mu      sync.Mutex
	pending map[string]*pipeLink
}

func newPipeExchange() *pipeExchange {
	return &pipeExchange{
		pending: make(map[string]*pipeLink),
	}
}

// pairKey is identical from both ends so two dials meet.
func pairKey(roomID string, a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s|%s", roomID, a, b)
}

func (ex *pipeExchange) dial(roomID string, selfID, peerID uuid.UUID, onMessage func(multiplayer.SessionMessage), onState func(multiplayer.LinkState)) *pipeLink {
	link := &pipeLink{
		ex:        ex,
		key:       pairKey(roomID, selfID, peerID),
		roomID:    roomID,
		selfID:    selfID,
		peerID:    peerID,
		onMessage: onMessage,
		onState:   onState,
		state:     multiplayer.LinkConnecting,
		opened:    make(chan struct{}),
		queue:     make(chan multiplayer.SessionMessage, pipeQueueSize),
		done:      make(chan struct{}),
	}

	ex.mu.Lock()
	other, ok := ex.pending[link.key]
	if ok && other.selfID == peerID {
		delete(ex.pending, link.key)
		ex.mu.Unlock()
		link.connect(other)
		other.connect(link)
		return link
	}
	ex.pending[link.key] = link
	ex.mu.Unlock()
	return link
}

// dropPlayer aborts any half-open dials involving the player in the room,
// used when the player leaves before a peer answered.
func (ex *pipeExchange) dropPlayer(roomID string, playerID uuid.UUID) {
	ex.mu.Lock()
	var stale []*pipeLink
	for key, link := range ex.pending {
		if link.roomID == roomID && (link.selfID == playerID || link.peerID == playerID) {
			stale = append(stale, link)
			delete(ex.pending, key)
		}
	}
	ex.mu.Unlock()
	for _, link := range stale {
		link.fail()
	}
}

// remove clears the link from the pending table if it is still there.
func (ex *pipeExchange) remove(link *pipeLink) {
	ex.mu.Lock()
	if cur, ok := ex.pending[link.key]; ok && cur == link {
		delete(ex.pending, link.key)
	}
	ex.mu.Unlock()
}

// pipeLink is one end of an in-process peer link.
type pipeLink struct {
	ex     *pipeExchange
	key    string
	roomID string
	selfID uuid.UUID
	peerID uuid.UUID

	onMessage func(multiplayer.SessionMessage)
	onState   func(multiplayer.LinkState)

	mu     sync.Mutex
	state  multiplayer.LinkState
	remote *pipeLink

	opened chan struct{}
	queue  chan multiplayer.SessionMessage
	done   chan struct{}

	deliverOnce sync.Once
	doneOnce    sync.Once
}

// connect wires this end to its remote and transitions to open.
func (l *pipeLink) connect(remote *pipeLink) {
	l.mu.Lock()
	if l.state != multiplayer.LinkConnecting {
		l.mu.Unlock()
		return
	}
	l.remote = remote
	l.state = multiplayer.LinkOpen
	observer := l.onState
	l.mu.Unlock()

	close(l.opened)
	l.deliverOnce.Do(func() { go l.deliverLoop() })
	if observer != nil {
		observer(multiplayer.LinkOpen)
	}
}

// deliverLoop drains the inbound queue in FIFO order.
func (l *pipeLink) deliverLoop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.queue:
			l.onMessage(msg)
		}
	}
}

// Open blocks until the peer answers or ctx expires. Expiry moves the link
// to the terminal failed state and returns ErrConnection; the caller then
// proceeds relay-only for this peer.
func (l *pipeLink) Open(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case multiplayer.LinkOpen:
		l.mu.Unlock()
		return nil
	case multiplayer.LinkClosed, multiplayer.LinkFailed:
		l.mu.Unlock()
		return multiplayer.ErrConnection
	}
	l.mu.Unlock()

	select {
	case <-l.opened:
		return nil
	case <-l.done:
		return multiplayer.ErrConnection
	case <-ctx.Done():
		l.fail()
		return multiplayer.ErrConnection
	}
}

// Send queues the message on the remote end. Fire-and-forget: dropped
// silently unless the link is open.
func (l *pipeLink) Send(msg multiplayer.SessionMessage) {
	l.mu.Lock()
	remote := l.remote
	open := l.state == multiplayer.LinkOpen
	l.mu.Unlock()
	if !open || remote == nil {
		return
	}
	select {
	case remote.queue <- msg:
	case <-remote.done:
	}
}

// Close releases the link and notifies the remote end. Idempotent.
func (l *pipeLink) Close() {
	l.mu.Lock()
	if l.state == multiplayer.LinkClosed || l.state == multiplayer.LinkFailed {
		l.mu.Unlock()
		return
	}
	l.state = multiplayer.LinkClosed
	remote := l.remote
	l.remote = nil
	observer := l.onState
	l.mu.Unlock()

	l.ex.remove(l)
	l.doneOnce.Do(func() { close(l.done) })
	if observer != nil {
		observer(multiplayer.LinkClosed)
	}
	if remote != nil {
		remote.peerClosed()
	}
}

// peerClosed transitions this end to closed when its remote went away.
func (l *pipeLink) peerClosed() {
	l.mu.Lock()
	if l.state != multiplayer.LinkOpen {
		l.mu.Unlock()
		return
	}
	l.state = multiplayer.LinkClosed
	l.remote = nil
	observer := l.onState
	l.mu.Unlock()

	l.doneOnce.Do(func() { close(l.done) })
	if observer != nil {
		observer(multiplayer.LinkClosed)
	}
}

// fail moves a connecting link to the terminal failed state.
func (l *pipeLink) fail() {
	l.mu.Lock()
	if l.state != multiplayer.LinkConnecting {
		l.mu.Unlock()
		return
	}
	l.state = multiplayer.LinkFailed
	observer := l.onState
	l.mu.Unlock()

	l.ex.remove(l)
	l.doneOnce.Do(func() { close(l.done) })
	if observer != nil {
		observer(multiplayer.LinkFailed)
	}
}

// State reports the link's current lifecycle state.
func (l *pipeLink) State() multiplayer.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
