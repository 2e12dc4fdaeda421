// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room relay handlers. These give
// clients a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidRoomIDError  = 3003 // Target room code in the WS URL does not exist.
	RoomFullError       = 3004 // Room is at capacity.
)
