// internal/multiplayer/errors.go
package multiplayer

import "errors"

// Directory and session errors are surfaced synchronously to the calling UI
// action; peer link errors are recovered locally by falling back to the relay.
var (
	// ErrRoomNotFound indicates the requested room code is unknown.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull indicates a join attempt against a room at capacity.
	ErrRoomFull = errors.New("room is full")

	// ErrNotAllReady indicates a start attempt while at least one player
	// has not readied up.
	ErrNotAllReady = errors.New("not all players are ready")

	// ErrConnection indicates a peer link could not be established. The
	// coordinator continues relay-only for that peer.
	ErrConnection = errors.New("peer connection failed")

	// ErrCodeSpaceExhausted indicates no unique room code could be
	// generated within the attempt bound. Not expected in practice.
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")

	// ErrNotInRoom indicates an operation that requires an active room
	// membership was called without one.
	ErrNotInRoom = errors.New("not in a room")
)
